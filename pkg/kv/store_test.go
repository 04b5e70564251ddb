package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	stores := map[string]Store{
		"file":   NewFileStore(t.TempDir()),
		"redis":  NewRedisStore(redisClient, "test:"),
		"memory": NewMemoryStore(),
	}

	for name, s := range stores {
		s := s
		properties.Property(name+" store returns what was put", prop.ForAll(
			func(value []byte, key string) bool {
				ctx := context.Background()
				if err := s.Put(ctx, key, value); err != nil {
					return false
				}
				got, ok, err := s.Get(ctx, key)
				return err == nil && ok && string(got) == string(value)
			},
			gen.SliceOf(gen.UInt8()),
			gen.Identifier(),
		))
	}

	properties.Property("backends agree after the same writes", prop.ForAll(
		func(first, second []byte) bool {
			ctx := context.Background()
			var seen []string
			for _, s := range stores {
				if s.Put(ctx, "equiv", first) != nil || s.Put(ctx, "equiv", second) != nil {
					return false
				}
				got, _, err := s.Get(ctx, "equiv")
				if err != nil {
					return false
				}
				seen = append(seen, string(got))
			}
			for _, v := range seen {
				if v != string(second) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt8()),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func TestMissingKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	for name, s := range map[string]Store{
		"file":   NewFileStore(t.TempDir()),
		"redis":  NewRedisStore(client, ""),
		"memory": NewMemoryStore(),
	} {
		t.Run(name, func(t *testing.T) {
			got, ok, err := s.Get(context.Background(), "absent")
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Nil(t, got)

			assert.ErrorIs(t, s.Put(context.Background(), "", []byte("x")), ErrInvalidKey)
		})
	}
}

func TestFileStoreKeysStayInsideDir(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "bomet:feed/../token", []byte("tok")))
	got, ok, err := s.Get(ctx, "bomet:feed/../token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", string(got))

	path, err := s.path("bomet:feed/../token")
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(path))

	_, err = s.path("..")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFileStoreCreatesDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/prefs"
	s := NewFileStore(dir)

	require.NoError(t, s.Put(context.Background(), "bometAudioMuted", []byte("true")))
	got, ok, err := s.Get(context.Background(), "bometAudioMuted")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", string(got))
}
