package pathres

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassification(t *testing.T) {
	cases := []struct {
		name string
		loc  Location
		want bool
	}{
		{"dev server inside pages", Location{Port: "5500", Pathname: "/welcome.html"}, true},
		{"dev server from root", Location{Port: "5500", Pathname: "/pages/welcome.html"}, false},
		{"dev server directory", Location{Port: "5500", Pathname: "/"}, false},
		{"api server", Location{Port: "3000", Pathname: "/welcome.html"}, false},
		{"production", Location{Port: "", Pathname: "/pages/game.html"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsAlternateRoot(tc.loc))
			assert.Equal(t, tc.want, New(tc.loc).Alternate())
		})
	}
}

func TestParse(t *testing.T) {
	r, err := Parse("http://127.0.0.1:5500/leaderboard.html?x=1")
	require.NoError(t, err)
	assert.True(t, r.Alternate())
	assert.Equal(t, "/leaderboard.html", r.Page())

	r, err = Parse("https://bomet.example/pages/leaderboard.html")
	require.NoError(t, err)
	assert.False(t, r.Alternate())

	_, err = Parse("http://[::1")
	assert.Error(t, err)
}

func TestAlternateRewrites(t *testing.T) {
	r := New(Location{Port: "5500", Pathname: "/game.html"})

	assert.Equal(t, "../sounds/menu.mp3", r.ResolveAsset("/sounds/menu.mp3"))
	assert.Equal(t, "../sounds/menu.mp3", r.ResolveAsset("sounds/menu.mp3"))
	assert.Equal(t, "../js/game.js", r.ResolveScript("/js/game.js"))
	assert.Equal(t, "welcome.html", r.ResolvePage("/pages/welcome.html"))
	assert.Equal(t, "welcome.html", r.ResolvePage("welcome.html"))
}

func TestStandardRewrites(t *testing.T) {
	r := New(Location{Port: "3000", Pathname: "/pages/game.html"})

	assert.Equal(t, "/sounds/menu.mp3", r.ResolveAsset("/sounds/menu.mp3"))
	assert.Equal(t, "/js/game.js", r.ResolveScript("/js/game.js"))
	assert.Equal(t, "/pages/welcome.html", r.ResolvePage("welcome.html"))
	assert.Equal(t, "/pages/welcome.html", r.ResolvePage("/pages/welcome.html"))
}

func TestResolverProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	alt := New(Location{Port: DevServerPort, Pathname: "/index.html"})
	std := New(Location{Port: "8080", Pathname: "/index.html"})
	name := gen.Identifier().Map(func(s string) string { return s + ".html" })

	properties.Property("standard asset paths are untouched", prop.ForAll(
		func(p string) bool { return std.ResolveAsset(p) == p },
		gen.AnyString(),
	))

	properties.Property("alternate asset paths climb exactly one level", prop.ForAll(
		func(p string) bool {
			got := alt.ResolveAsset("/" + p)
			return got == "../"+p && alt.ResolveAsset(p) == got
		},
		gen.Identifier(),
	))

	properties.Property("standard page resolution is idempotent", prop.ForAll(
		func(n string) bool {
			once := std.ResolvePage(n)
			return strings.HasPrefix(once, "/pages/") && std.ResolvePage(once) == once
		},
		name,
	))

	properties.Property("alternate pages are bare file names", prop.ForAll(
		func(n string) bool {
			return alt.ResolvePage(n) == n &&
				alt.ResolvePage("/pages/"+n) == n &&
				alt.ResolvePage("/"+n) == n
		},
		name,
	))

	properties.Property("scripts follow assets", prop.ForAll(
		func(p string) bool {
			return alt.ResolveScript(p) == alt.ResolveAsset(p) && std.ResolveScript(p) == std.ResolveAsset(p)
		},
		gen.AnyString(),
	))

	properties.TestingRun(t)
}
