// Package audio manages the game's named music tracks and sound effects: mute
// state, the first-interaction gate and a single music slot.
package audio

import (
	"context"
	"strings"
	"sync"
	"time"

	"bomet/pkg/logger"

	"go.uber.org/zap"
)

// State is the lifecycle of one asset.
type State int

const (
	Idle State = iota
	Loading
	Ready
	Playing
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Playing:
		return "playing"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Interaction is the kind of input that unlocks playback.
type Interaction int

const (
	Pointer Interaction = iota
	Key
	Touch
)

func (i Interaction) String() string {
	switch i {
	case Pointer:
		return "pointer"
	case Key:
		return "key"
	case Touch:
		return "touch"
	}
	return "unknown"
}

// Playback is one started play of a clip.
type Playback interface {
	// Started yields exactly once, even after Stop. nil means sound is
	// actually coming out.
	Started() <-chan error
	// Done is closed when the clip ends or is stopped.
	Done() <-chan struct{}
	// Stop may be called more than once.
	Stop()
}

// Backend is the native playback device. Implementations must not call back
// into the Manager.
type Backend interface {
	Load(ctx context.Context, a Asset) error
	// Play starts name from the beginning, looping when loop is set.
	Play(name string, loop bool) Playback
	// SetMuted silences or restores every clip in place.
	SetMuted(muted bool)
}

type Config struct {
	Manifest Manifest
	// Page is the current page path, used to pick contextual music.
	Page string
	// PrefsTimeout bounds preference reads and writes.
	PrefsTimeout time.Duration
}

type asset struct {
	Asset
	state    State
	gen      uint64
	starting bool
	playback Playback
}

// Manager owns the audio assets. It is safe for concurrent use.
type Manager struct {
	logger  *logger.Logger
	backend Backend
	prefs   *Prefs
	page    string
	timeout time.Duration

	mu             sync.Mutex
	assets         map[string]*asset
	order          []string
	muted          bool
	interacted     bool
	current        string
	pendingMusic   string
	pendingEffects []string
	onFirst        []func()

	wg sync.WaitGroup
}

// NewManager restores the saved mute preference and registers every manifest
// asset in the Idle state. prefs may be nil.
func NewManager(l *logger.Logger, backend Backend, prefs *Prefs, cfg Config) *Manager {
	if cfg.PrefsTimeout <= 0 {
		cfg.PrefsTimeout = 2 * time.Second
	}
	m := &Manager{
		logger:  l,
		backend: backend,
		prefs:   prefs,
		page:    cfg.Page,
		timeout: cfg.PrefsTimeout,
		assets:  make(map[string]*asset, len(cfg.Manifest.Assets)),
	}
	for _, a := range cfg.Manifest.Assets {
		if _, dup := m.assets[a.Name]; dup {
			continue
		}
		m.assets[a.Name] = &asset{Asset: a}
		m.order = append(m.order, a.Name)
	}

	if prefs != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		muted, err := prefs.Muted(ctx)
		cancel()
		if err != nil {
			l.Warn("could not read mute preference", zap.Error(err))
		}
		m.muted = muted
	}
	backend.SetMuted(m.muted)

	l.Info("audio manager initialized",
		zap.Int("assets", len(m.order)),
		zap.Bool("muted", m.muted))
	return m
}

// Load loads every asset through the backend. Failed assets are logged and
// left in the Failed state; only cancellation is returned.
func (m *Manager) Load(ctx context.Context) error {
	for _, name := range m.order {
		if err := ctx.Err(); err != nil {
			return err
		}

		m.mu.Lock()
		a := m.assets[name]
		if a.state != Idle && a.state != Failed {
			m.mu.Unlock()
			continue
		}
		a.state = Loading
		entry := a.Asset
		m.mu.Unlock()

		err := m.backend.Load(ctx, entry)

		m.mu.Lock()
		if err != nil {
			a.state = Failed
			m.logger.Warn("failed to load sound",
				zap.String("name", entry.Name),
				zap.String("source", entry.Source),
				zap.Error(err))
		} else {
			a.state = Ready
			m.logger.Debug("sound loaded", zap.String("name", entry.Name))
		}
		m.mu.Unlock()
	}
	return ctx.Err()
}

// PlayMusic makes name the current track. Before the first interaction the
// request waits in a single slot; the latest request wins.
func (m *Manager) PlayMusic(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playMusicLocked(name)
}

func (m *Manager) playMusicLocked(name string) {
	if m.muted {
		m.logger.Debug("music not played: muted", zap.String("name", name))
		return
	}
	a, ok := m.assets[name]
	if !ok || !a.Music {
		m.logger.Warn("music not found", zap.String("name", name))
		return
	}
	if m.current == name && (a.state == Playing || a.starting) {
		return
	}
	if !m.interacted {
		m.pendingMusic = name
		m.logger.Debug("music deferred until first interaction", zap.String("name", name))
		return
	}
	if !playable(a) {
		m.logger.Warn("music not loaded", zap.String("name", name), zap.Stringer("state", a.state))
		return
	}

	m.stopMusicLocked()
	m.current = name
	m.startLocked(a)
}

// PlaySoundEffect plays name over any music, restarting it if it is already
// sounding. Before the first interaction each effect is deferred at most once.
func (m *Manager) PlaySoundEffect(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playEffectLocked(name)
}

func (m *Manager) playEffectLocked(name string) {
	if m.muted {
		return
	}
	a, ok := m.assets[name]
	if !ok || a.Music {
		m.logger.Warn("sound effect not found", zap.String("name", name))
		return
	}
	if !m.interacted {
		for _, p := range m.pendingEffects {
			if p == name {
				return
			}
		}
		m.pendingEffects = append(m.pendingEffects, name)
		return
	}
	if !playable(a) {
		m.logger.Warn("sound effect not loaded", zap.String("name", name), zap.Stringer("state", a.state))
		return
	}

	m.halt(a)
	m.startLocked(a)
}

// OnFirstInteraction registers fn to run once when playback is unlocked. It
// runs immediately if that already happened.
func (m *Manager) OnFirstInteraction(fn func()) {
	m.mu.Lock()
	if !m.interacted {
		m.onFirst = append(m.onFirst, fn)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	fn()
}

// Interact records a user input. The first one unlocks playback and reports
// true; later ones do nothing.
func (m *Manager) Interact(kind Interaction) bool {
	m.mu.Lock()
	if m.interacted {
		m.mu.Unlock()
		return false
	}
	m.logger.Info("first interaction, audio unlocked", zap.Stringer("kind", kind))
	callbacks := m.unlockLocked()
	m.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
	return true
}

// unlockLocked drains the pending slot, or falls back to contextual music,
// and hands back the callbacks to run outside the lock.
func (m *Manager) unlockLocked() []func() {
	m.interacted = true

	music := m.pendingMusic
	effects := m.pendingEffects
	callbacks := m.onFirst
	m.pendingMusic, m.pendingEffects, m.onFirst = "", nil, nil

	if music == "" {
		music = ContextualTrack(m.page)
	}
	if music != "" {
		m.playMusicLocked(music)
	}
	for _, name := range effects {
		m.playEffectLocked(name)
	}
	return callbacks
}

// ToggleMute flips and persists the mute state and returns the new value.
func (m *Manager) ToggleMute() bool {
	m.mu.Lock()
	muted := !m.muted
	m.mu.Unlock()
	m.SetMuted(muted)
	return muted
}

// SetMuted applies muted to every asset in place and persists it. Unmuting
// counts as the first interaction and resumes contextual music.
func (m *Manager) SetMuted(muted bool) {
	m.mu.Lock()
	m.muted = muted
	m.backend.SetMuted(muted)

	var callbacks []func()
	if !muted {
		if !m.interacted {
			callbacks = m.unlockLocked()
		} else if track := ContextualTrack(m.page); track != "" {
			m.playMusicLocked(track)
		}
	}
	m.mu.Unlock()

	m.logger.Info("audio mute changed", zap.Bool("muted", muted))
	m.savePreference(muted)
	for _, fn := range callbacks {
		fn()
	}
}

// StopMusic stops the current track and forgets any deferred one.
func (m *Manager) StopMusic() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingMusic = ""
	m.stopMusicLocked()
}

func (m *Manager) State(name string) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[name]
	if !ok {
		return Idle, false
	}
	return a.state, true
}

func (m *Manager) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

func (m *Manager) Interacted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interacted
}

// CurrentMusic is the track that is playing or starting, or "".
func (m *Manager) CurrentMusic() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// PendingMusic is the track waiting for the first interaction, or "".
func (m *Manager) PendingMusic() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pendingMusic
}

// Close stops every asset and waits for outstanding completions.
func (m *Manager) Close() {
	m.mu.Lock()
	m.current = ""
	m.pendingMusic = ""
	m.pendingEffects = nil
	for _, a := range m.assets {
		m.halt(a)
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// ContextualTrack picks the music that fits a page path.
func ContextualTrack(page string) string {
	if strings.Contains(page, "game_canvas") {
		return "game"
	}
	for _, p := range []string{"welcome", "login", "instructions", "leaderboard"} {
		if strings.Contains(page, p) {
			return "menu"
		}
	}
	return ""
}

func playable(a *asset) bool {
	return a.state == Ready || a.state == Playing
}

func (m *Manager) stopMusicLocked() {
	if m.current == "" {
		return
	}
	if a, ok := m.assets[m.current]; ok {
		m.halt(a)
	}
	m.current = ""
}

// halt stops a and invalidates its in-flight completions.
func (m *Manager) halt(a *asset) {
	a.gen++
	a.starting = false
	if a.playback != nil {
		a.playback.Stop()
		a.playback = nil
	}
	if a.state == Playing {
		a.state = Ready
	}
}

func (m *Manager) startLocked(a *asset) {
	a.gen++
	a.starting = true
	pb := m.backend.Play(a.Name, a.Music)
	a.playback = pb

	m.wg.Add(1)
	go m.await(a, a.gen, pb)
}

// await settles one Playback. Completions from an older generation are
// dropped so a stopped or replaced clip cannot come back.
func (m *Manager) await(a *asset, gen uint64, pb Playback) {
	defer m.wg.Done()

	err := <-pb.Started()

	m.mu.Lock()
	if a.gen != gen {
		m.mu.Unlock()
		pb.Stop()
		return
	}
	a.starting = false
	if err != nil {
		a.playback = nil
		if m.current == a.Name {
			m.current = ""
		}
		m.mu.Unlock()
		m.logger.Warn("failed to play sound", zap.String("name", a.Name), zap.Error(err))
		return
	}
	a.state = Playing
	m.mu.Unlock()

	<-pb.Done()

	m.mu.Lock()
	if a.gen == gen {
		a.state = Ready
		a.playback = nil
		if m.current == a.Name {
			m.current = ""
		}
	}
	m.mu.Unlock()
}

func (m *Manager) savePreference(muted bool) {
	if m.prefs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	if err := m.prefs.SetMuted(ctx, muted); err != nil {
		m.logger.Warn("could not save mute preference", zap.Error(err))
	}
}
