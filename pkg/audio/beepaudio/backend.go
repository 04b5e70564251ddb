// Package beepaudio plays audio.Manager assets through the system speaker.
package beepaudio

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"bomet/pkg/audio"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Sink receives streamers to mix. speaker.Play is the default.
type Sink func(s ...beep.Streamer)

type clip struct {
	buffer *beep.Buffer
	volume float64
	// silent clips have a volume of zero or less and never sound.
	silent bool
}

// Backend decodes every asset into memory once and plays copies of the
// buffers.
type Backend struct {
	rate beep.SampleRate
	sink Sink

	mu      sync.Mutex
	clips   map[string]*clip
	playing map[*playback]struct{}
	muted   bool
}

// New initializes the speaker at rate and returns a Backend playing on it.
func New(rate beep.SampleRate, bufferSize time.Duration) (*Backend, error) {
	if err := speaker.Init(rate, rate.N(bufferSize)); err != nil {
		return nil, fmt.Errorf("init speaker: %w", err)
	}
	return NewWithSink(rate, speaker.Play), nil
}

// NewWithSink plays on sink instead of the speaker.
func NewWithSink(rate beep.SampleRate, sink Sink) *Backend {
	return &Backend{
		rate:    rate,
		sink:    sink,
		clips:   make(map[string]*clip),
		playing: make(map[*playback]struct{}),
	}
}

func (b *Backend) Load(ctx context.Context, a audio.Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	buffer, err := b.decode(a.Source)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.clips[a.Name] = &clip{buffer: buffer, volume: gain(a.Volume), silent: a.Volume <= 0}
	b.mu.Unlock()
	return nil
}

func (b *Backend) decode(file string) (*beep.Buffer, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	var (
		streamer beep.StreamSeekCloser
		format   beep.Format
	)
	switch ext := strings.ToLower(filepath.Ext(file)); ext {
	case ".mp3":
		streamer, format, err = mp3.Decode(f)
	case ".wav":
		streamer, format, err = wav.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", file, err)
	}
	defer streamer.Close()

	var src beep.Streamer = streamer
	if format.SampleRate != b.rate {
		src = beep.Resample(4, format.SampleRate, b.rate, streamer)
	}
	format.SampleRate = b.rate

	buffer := beep.NewBuffer(format)
	buffer.Append(src)
	return buffer, nil
}

// gain converts a linear volume in (0, 1] to a base 2 exponent. Volumes of
// zero or less have no exponent; the clip is played silent instead.
func gain(linear float64) float64 {
	if linear <= 0 {
		return 0
	}
	return math.Log2(linear)
}

func (b *Backend) Play(name string, loop bool) audio.Playback {
	pb := &playback{
		backend: b,
		started: make(chan error, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	c, ok := b.clips[name]
	b.mu.Unlock()

	if !ok {
		pb.started <- fmt.Errorf("sound %q is not loaded", name)
		pb.finish()
		return pb
	}

	var s beep.Streamer = c.buffer.Streamer(0, c.buffer.Len())
	if loop {
		s = beep.Loop(-1, c.buffer.Streamer(0, c.buffer.Len()))
	}
	pb.ctrl = &beep.Ctrl{Streamer: s}
	pb.volume = &effects.Volume{Streamer: pb.ctrl, Base: 2, Volume: c.volume}
	pb.silent = c.silent

	b.mu.Lock()
	pb.volume.Silent = b.muted || pb.silent
	b.playing[pb] = struct{}{}
	b.mu.Unlock()

	b.sink(beep.Seq(pb.volume, beep.Callback(pb.finish)))
	pb.started <- nil
	return pb
}

// SetMuted silences every sounding clip without stopping it.
func (b *Backend) SetMuted(muted bool) {
	b.mu.Lock()
	b.muted = muted
	active := make([]*playback, 0, len(b.playing))
	for pb := range b.playing {
		active = append(active, pb)
	}
	b.mu.Unlock()

	speaker.Lock()
	for _, pb := range active {
		pb.volume.Silent = muted || pb.silent
	}
	speaker.Unlock()
}

type playback struct {
	backend *Backend
	ctrl    *beep.Ctrl
	volume  *effects.Volume
	silent  bool
	started chan error
	done    chan struct{}
	once    sync.Once
}

func (p *playback) Started() <-chan error { return p.started }
func (p *playback) Done() <-chan struct{}  { return p.done }

func (p *playback) Stop() {
	if p.ctrl != nil {
		speaker.Lock()
		p.ctrl.Streamer = nil
		speaker.Unlock()
	}
	p.finish()
}

// finish runs on the mixer goroutine when the clip ends, or on Stop.
func (p *playback) finish() {
	p.once.Do(func() {
		p.backend.mu.Lock()
		delete(p.backend.playing, p)
		p.backend.mu.Unlock()
		close(p.done)
	})
}
