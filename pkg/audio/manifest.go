package audio

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

const (
	MusicVolume  = 0.3
	EffectVolume = 0.5
)

// Asset is one named sound in the manifest.
type Asset struct {
	Name   string  `yaml:"name"`
	Source string  `yaml:"source"`
	Music  bool    `yaml:"music"`
	Volume float64 `yaml:"volume"`
}

// Manifest lists the sounds loaded at startup.
type Manifest struct {
	Assets []Asset `yaml:"assets"`
}

// DefaultManifest is the game's sound set rooted at soundsDir.
func DefaultManifest(soundsDir string) Manifest {
	at := func(file string) string { return path.Join(soundsDir, file) }
	return Manifest{Assets: []Asset{
		{Name: "menu", Source: at("menu.mp3"), Music: true, Volume: MusicVolume},
		{Name: "game", Source: at("game.mp3"), Music: true, Volume: MusicVolume},
		{Name: "playerShoot", Source: at("disparo_personaje.mp3"), Volume: EffectVolume},
		{Name: "enemyShoot", Source: at("disparo_enemigo.mp3"), Volume: EffectVolume},
		{Name: "enemyDamage", Source: at("daño_enemigo.mp3"), Volume: EffectVolume},
		{Name: "gameOver", Source: at("Gameover.mp3"), Volume: EffectVolume},
	}}
}

// ParseManifest decodes a YAML manifest. Missing volumes get the music or
// effect default.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parse audio manifest: %w", err)
	}
	seen := make(map[string]bool, len(m.Assets))
	for i := range m.Assets {
		a := &m.Assets[i]
		if a.Name == "" || a.Source == "" {
			return Manifest{}, fmt.Errorf("audio manifest entry %d: name and source are required", i)
		}
		if seen[a.Name] {
			return Manifest{}, fmt.Errorf("audio manifest: duplicate asset %q", a.Name)
		}
		seen[a.Name] = true
		if a.Volume <= 0 {
			a.Volume = EffectVolume
			if a.Music {
				a.Volume = MusicVolume
			}
		}
	}
	return m, nil
}

// LoadManifest reads and parses a manifest file.
func LoadManifest(file string) (Manifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return Manifest{}, err
	}
	return ParseManifest(data)
}
