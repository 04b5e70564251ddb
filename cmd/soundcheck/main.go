package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bomet/pkg/audio"
	"bomet/pkg/audio/beepaudio"
	"bomet/pkg/kv"
	"bomet/pkg/logger"
	"bomet/pkg/pathres"

	"github.com/faiface/beep"
	"go.uber.org/zap"
)

const soundsPath = "/assets/sounds"

func main() {
	page := flag.String("page", "http://localhost:3000/pages/welcome.html", "page URL the game is opened at")
	root := flag.String("root", ".", "frontend directory on disk")
	manifestFile := flag.String("manifest", "", "YAML audio manifest (default: built-in sound set)")
	track := flag.String("track", "", "music to request before the first interaction")
	effect := flag.String("effect", "playerShoot", "sound effect to fire after the interaction")
	prefsDir := flag.String("prefs", filepath.Join(os.TempDir(), "bomet"), "directory holding the mute preference")
	toggle := flag.Bool("toggle-mute", false, "flip the saved mute preference")
	duration := flag.Duration("duration", 5*time.Second, "how long to play")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	level := "info"
	if *verbose {
		level = "debug"
	}
	l, err := logger.New(logger.Config{Level: level, Environment: "development", ServiceName: "soundcheck"})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer l.Sync()

	// 1. Resolve where the sounds live for this page
	resolver, err := pathres.Parse(*page)
	if err != nil {
		l.Error("invalid page url", err, zap.String("page", *page))
		os.Exit(1)
	}
	dir := soundsDir(*root, resolver)
	l.Info("resolved sound directory",
		zap.Bool("pages_root", resolver.Alternate()),
		zap.String("web_path", resolver.ResolveAsset(soundsPath)),
		zap.String("dir", dir))

	// 2. Manifest
	manifest := audio.DefaultManifest(dir)
	if *manifestFile != "" {
		if manifest, err = audio.LoadManifest(*manifestFile); err != nil {
			l.Error("failed to load audio manifest", err, zap.String("file", *manifestFile))
			os.Exit(1)
		}
	}

	// 3. Backend, preferences and manager
	backend, err := beepaudio.New(beep.SampleRate(44100), 100*time.Millisecond)
	if err != nil {
		l.Error("failed to open audio device", err)
		os.Exit(1)
	}
	prefs := audio.NewPrefs(kv.NewFileStore(*prefsDir))
	mgr := audio.NewManager(l.Named("audio"), backend, prefs, audio.Config{Manifest: manifest, Page: resolver.Page()})
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.Load(ctx); err != nil {
		l.Info("loading interrupted")
		return
	}
	for _, a := range manifest.Assets {
		state, _ := mgr.State(a.Name)
		l.Info("asset", zap.String("name", a.Name), zap.Bool("music", a.Music), zap.Stringer("state", state))
	}

	if *toggle {
		l.Info("mute toggled", zap.Bool("muted", mgr.ToggleMute()))
	}

	// 4. Requests made before the user has interacted are held back
	if *track != "" {
		mgr.PlayMusic(*track)
	}
	mgr.OnFirstInteraction(func() {
		l.Info("playback unlocked", zap.String("pending", mgr.PendingMusic()))
	})
	mgr.Interact(audio.Key)
	if *effect != "" {
		mgr.PlaySoundEffect(*effect)
	}
	l.Info("playing",
		zap.String("music", mgr.CurrentMusic()),
		zap.String("contextual", audio.ContextualTrack(resolver.Page())),
		zap.Bool("muted", mgr.Muted()))

	select {
	case <-time.After(*duration):
	case <-ctx.Done():
	}
	mgr.StopMusic()
}

// soundsDir maps the web path of the sound folder onto disk. With the pages
// folder as web root the resolver climbs out of it, so the walk starts there.
func soundsDir(root string, r pathres.Resolver) string {
	base := root
	if r.Alternate() {
		base = filepath.Join(root, "pages")
	}
	return filepath.Join(base, filepath.FromSlash(r.ResolveAsset(soundsPath)))
}
