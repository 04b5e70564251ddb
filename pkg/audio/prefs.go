package audio

import (
	"context"
	"strconv"

	"bomet/pkg/kv"
)

// MutedKey is where the mute preference is kept.
const MutedKey = "bometAudioMuted"

// Prefs persists the mute preference across sessions.
type Prefs struct {
	store kv.Store
}

func NewPrefs(s kv.Store) *Prefs {
	return &Prefs{store: s}
}

// Muted reports the saved preference. Nothing saved means unmuted.
func (p *Prefs) Muted(ctx context.Context) (bool, error) {
	v, ok, err := p.store.Get(ctx, MutedKey)
	if err != nil || !ok {
		return false, err
	}
	return string(v) == "true", nil
}

func (p *Prefs) SetMuted(ctx context.Context, muted bool) error {
	return p.store.Put(ctx, MutedKey, []byte(strconv.FormatBool(muted)))
}
