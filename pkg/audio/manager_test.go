package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bomet/pkg/kv"
	"bomet/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePlayback struct {
	name     string
	started  chan error
	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

func newFakePlayback(name string) *fakePlayback {
	return &fakePlayback{
		name:    name,
		started: make(chan error, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

func (p *fakePlayback) Started() <-chan error { return p.started }
func (p *fakePlayback) Done() <-chan struct{}  { return p.done }

func (p *fakePlayback) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.done)
	})
}

func (p *fakePlayback) isStopped() bool {
	select {
	case <-p.stopped:
		return true
	default:
		return false
	}
}

// fakeBackend resolves starts immediately unless manual is set.
type fakeBackend struct {
	mu       sync.Mutex
	manual   bool
	failLoad map[string]bool
	failPlay map[string]bool
	loaded   []string
	plays    []*fakePlayback
	muted    []bool
}

func (b *fakeBackend) Load(ctx context.Context, a Asset) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLoad[a.Name] {
		return errors.New("decode failed")
	}
	b.loaded = append(b.loaded, a.Name)
	return nil
}

func (b *fakeBackend) Play(name string, loop bool) Playback {
	b.mu.Lock()
	defer b.mu.Unlock()
	pb := newFakePlayback(name)
	b.plays = append(b.plays, pb)
	if !b.manual {
		if b.failPlay[name] {
			pb.started <- errors.New("device busy")
		} else {
			pb.started <- nil
		}
	}
	return pb
}

func (b *fakeBackend) SetMuted(muted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.muted = append(b.muted, muted)
}

func (b *fakeBackend) playsOf(name string) []*fakePlayback {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*fakePlayback
	for _, p := range b.plays {
		if p.name == name {
			out = append(out, p)
		}
	}
	return out
}

func (b *fakeBackend) lastMuted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.muted[len(b.muted)-1]
}

func newManager(t *testing.T, b *fakeBackend, prefs *Prefs, page string) *Manager {
	t.Helper()
	m := NewManager(logger.NewNop(), b, prefs, Config{Manifest: DefaultManifest("/sounds"), Page: page})
	require.NoError(t, m.Load(context.Background()))
	t.Cleanup(m.Close)
	return m
}

func waitState(t *testing.T, m *Manager, name string, want State) {
	t.Helper()
	assert.Eventually(t, func() bool {
		got, _ := m.State(name)
		return got == want
	}, time.Second, 5*time.Millisecond, "%s never reached %s", name, want)
}

func TestLoadMarksAssets(t *testing.T) {
	b := &fakeBackend{failLoad: map[string]bool{"gameOver": true}}
	m := newManager(t, b, nil, "")

	st, ok := m.State("menu")
	require.True(t, ok)
	assert.Equal(t, Ready, st)

	st, _ = m.State("gameOver")
	assert.Equal(t, Failed, st)

	_, ok = m.State("nope")
	assert.False(t, ok)
	assert.Len(t, b.loaded, 5)
}

func TestMusicDeferredUntilFirstInteraction(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, nil, "")

	m.PlayMusic("game")
	assert.Empty(t, b.playsOf("game"))
	assert.Equal(t, "game", m.PendingMusic())

	assert.True(t, m.Interact(Pointer))
	require.Len(t, b.playsOf("game"), 1)
	waitState(t, m, "game", Playing)
	assert.Equal(t, "game", m.CurrentMusic())

	m.PlayMusic("game")
	assert.Len(t, b.playsOf("game"), 1)

	assert.False(t, m.Interact(Key))
	assert.Len(t, b.playsOf("game"), 1)
}

func TestPendingSlotKeepsLatestRequest(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, nil, "")

	m.PlayMusic("menu")
	m.PlayMusic("game")
	m.Interact(Touch)

	assert.Empty(t, b.playsOf("menu"))
	assert.Len(t, b.playsOf("game"), 1)
}

func TestFirstInteractionPlaysContextualMusic(t *testing.T) {
	cases := map[string]string{
		"/pages/game_canvas.html": "game",
		"/pages/welcome.html":     "menu",
		"/pages/leaderboard.html": "menu",
		"/pages/login.html":       "menu",
		"/pages/credits.html":     "",
	}
	for page, want := range cases {
		t.Run(page, func(t *testing.T) {
			assert.Equal(t, want, ContextualTrack(page))

			b := &fakeBackend{}
			m := newManager(t, b, nil, page)
			m.Interact(Pointer)
			assert.Equal(t, want, m.CurrentMusic())
		})
	}
}

func TestSwitchingMusicStopsPrevious(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, nil, "")
	m.Interact(Key)

	m.PlayMusic("menu")
	waitState(t, m, "menu", Playing)
	m.PlayMusic("game")

	menu := b.playsOf("menu")
	require.Len(t, menu, 1)
	assert.True(t, menu[0].isStopped())
	waitState(t, m, "game", Playing)
	st, _ := m.State("menu")
	assert.Equal(t, Ready, st)
	assert.Equal(t, "game", m.CurrentMusic())
}

func TestStaleStartIsIgnored(t *testing.T) {
	b := &fakeBackend{manual: true}
	m := newManager(t, b, nil, "")
	m.Interact(Pointer)

	m.PlayMusic("menu")
	first := b.playsOf("menu")
	require.Len(t, first, 1)

	m.StopMusic()
	first[0].started <- nil

	// Give the completion a chance to land before checking it was dropped.
	time.Sleep(20 * time.Millisecond)
	st, _ := m.State("menu")
	assert.Equal(t, Ready, st)
	assert.Empty(t, m.CurrentMusic())
	assert.True(t, first[0].isStopped())
}

func TestFailedStartClearsCurrent(t *testing.T) {
	b := &fakeBackend{failPlay: map[string]bool{"menu": true}}
	m := newManager(t, b, nil, "")
	m.Interact(Pointer)

	m.PlayMusic("menu")
	assert.Eventually(t, func() bool { return m.CurrentMusic() == "" }, time.Second, 5*time.Millisecond)
	st, _ := m.State("menu")
	assert.Equal(t, Ready, st)
}

func TestSoundEffectsRestartAndReturnToReady(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, nil, "")
	m.Interact(Pointer)

	m.PlaySoundEffect("playerShoot")
	waitState(t, m, "playerShoot", Playing)
	m.PlaySoundEffect("playerShoot")

	shots := b.playsOf("playerShoot")
	require.Len(t, shots, 2)
	assert.True(t, shots[0].isStopped())
	waitState(t, m, "playerShoot", Playing)

	shots[1].Stop()
	waitState(t, m, "playerShoot", Ready)
}

func TestSoundEffectsDeferredOncePerName(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, nil, "")

	m.PlaySoundEffect("enemyShoot")
	m.PlaySoundEffect("enemyShoot")
	m.PlaySoundEffect("enemyDamage")
	m.PlaySoundEffect("menu")
	assert.Empty(t, b.playsOf("enemyShoot"))

	m.Interact(Pointer)
	assert.Len(t, b.playsOf("enemyShoot"), 1)
	assert.Len(t, b.playsOf("enemyDamage"), 1)
	assert.Empty(t, b.playsOf("menu"))
}

func TestFailedAssetIsNotPlayed(t *testing.T) {
	b := &fakeBackend{failLoad: map[string]bool{"gameOver": true}}
	m := newManager(t, b, nil, "")
	m.Interact(Pointer)

	m.PlaySoundEffect("gameOver")
	assert.Empty(t, b.playsOf("gameOver"))
}

func TestMutedBlocksPlayback(t *testing.T) {
	store := kv.NewMemoryStore()
	prefs := NewPrefs(store)
	require.NoError(t, prefs.SetMuted(context.Background(), true))

	b := &fakeBackend{}
	m := newManager(t, b, prefs, "/pages/welcome.html")
	assert.True(t, m.Muted())
	assert.True(t, b.lastMuted())

	m.PlayMusic("menu")
	m.PlaySoundEffect("playerShoot")
	m.Interact(Pointer)
	assert.Empty(t, b.playsOf("menu"))
	assert.Empty(t, b.playsOf("playerShoot"))
	assert.Empty(t, m.PendingMusic())
}

func TestUnmuteCountsAsInteraction(t *testing.T) {
	store := kv.NewMemoryStore()
	prefs := NewPrefs(store)
	require.NoError(t, prefs.SetMuted(context.Background(), true))

	b := &fakeBackend{}
	m := newManager(t, b, prefs, "/pages/game_canvas.html")

	fired := 0
	m.OnFirstInteraction(func() { fired++ })

	assert.False(t, m.ToggleMute())
	assert.False(t, b.lastMuted())
	assert.True(t, m.Interacted())
	assert.Equal(t, 1, fired)
	assert.Len(t, b.playsOf("game"), 1)

	saved, err := prefs.Muted(context.Background())
	require.NoError(t, err)
	assert.False(t, saved)

	assert.False(t, m.Interact(Pointer))
	assert.Equal(t, 1, fired)
}

func TestMuteKeepsMusicInPlace(t *testing.T) {
	b := &fakeBackend{}
	prefs := NewPrefs(kv.NewMemoryStore())
	m := newManager(t, b, prefs, "/pages/welcome.html")
	m.Interact(Pointer)
	waitState(t, m, "menu", Playing)

	assert.True(t, m.ToggleMute())
	assert.True(t, b.lastMuted())
	menu := b.playsOf("menu")
	require.Len(t, menu, 1)
	assert.False(t, menu[0].isStopped())
	assert.Equal(t, "menu", m.CurrentMusic())

	saved, err := prefs.Muted(context.Background())
	require.NoError(t, err)
	assert.True(t, saved)

	assert.False(t, m.ToggleMute())
	assert.Len(t, b.playsOf("menu"), 1)
}

func TestOnFirstInteractionRunsOnce(t *testing.T) {
	m := newManager(t, &fakeBackend{}, nil, "")

	var calls []string
	m.OnFirstInteraction(func() { calls = append(calls, "a") })
	m.OnFirstInteraction(func() { calls = append(calls, "b") })

	m.Interact(Key)
	m.Interact(Key)
	assert.Equal(t, []string{"a", "b"}, calls)

	m.OnFirstInteraction(func() { calls = append(calls, "late") })
	assert.Equal(t, []string{"a", "b", "late"}, calls)
}

func TestStopMusicDropsPending(t *testing.T) {
	b := &fakeBackend{}
	m := newManager(t, b, nil, "")

	m.PlayMusic("menu")
	m.StopMusic()
	m.Interact(Pointer)
	assert.Empty(t, b.playsOf("menu"))
}

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest([]byte(`
assets:
  - name: menu
    source: sounds/menu.mp3
    music: true
  - name: laser
    source: sounds/laser.wav
    volume: 0.8
`))
	require.NoError(t, err)
	require.Len(t, m.Assets, 2)
	assert.Equal(t, MusicVolume, m.Assets[0].Volume)
	assert.Equal(t, 0.8, m.Assets[1].Volume)
	assert.False(t, m.Assets[1].Music)

	_, err = ParseManifest([]byte("assets:\n  - name: x\n"))
	assert.Error(t, err)

	_, err = ParseManifest([]byte("assets:\n  - {name: a, source: a.mp3}\n  - {name: a, source: b.mp3}\n"))
	assert.Error(t, err)
}

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest("../sounds")
	names := map[string]Asset{}
	for _, a := range m.Assets {
		names[a.Name] = a
	}
	assert.True(t, names["menu"].Music)
	assert.True(t, names["game"].Music)
	assert.False(t, names["gameOver"].Music)
	assert.Equal(t, "../sounds/game.mp3", names["game"].Source)
	assert.Equal(t, EffectVolume, names["enemyShoot"].Volume)
}
