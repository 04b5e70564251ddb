// Package pathres rewrites asset, page and script paths for the two ways the
// game frontend is served: from the project root, or by the development file
// server started inside the pages directory.
package pathres

import (
	"net/url"
	"strings"
)

// DevServerPort is the port of the development file server.
const DevServerPort = "5500"

const pagesSegment = "/pages/"

// Location is the part of the page URL the resolver looks at.
type Location struct {
	Port     string
	Pathname string
}

// Resolver is immutable and safe for concurrent use.
type Resolver struct {
	alternate bool
	page      string
}

// New classifies loc once.
func New(loc Location) Resolver {
	return Resolver{alternate: IsAlternateRoot(loc), page: loc.Pathname}
}

// Parse builds a Resolver from a page URL such as
// "http://127.0.0.1:5500/welcome.html".
func Parse(rawURL string) (Resolver, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Resolver{}, err
	}
	return New(Location{Port: u.Port(), Pathname: u.Path}), nil
}

// IsAlternateRoot reports whether the page is served with pages/ as the root.
func IsAlternateRoot(loc Location) bool {
	return loc.Port == DevServerPort &&
		!strings.Contains(loc.Pathname, pagesSegment) &&
		strings.HasSuffix(loc.Pathname, ".html")
}

// Alternate reports the classification made by New.
func (r Resolver) Alternate() bool { return r.alternate }

// Page is the path of the page the resolver was built for.
func (r Resolver) Page() string { return r.page }

// ResolveAsset maps an image, stylesheet or sound path.
func (r Resolver) ResolveAsset(p string) string {
	if r.alternate {
		return "../" + strings.TrimPrefix(p, "/")
	}
	return p
}

// ResolveScript maps a script path. Scripts follow the asset rule.
func (r Resolver) ResolveScript(p string) string {
	return r.ResolveAsset(p)
}

// ResolvePage maps a page name used for navigation.
func (r Resolver) ResolvePage(name string) string {
	if r.alternate {
		return strings.TrimPrefix(strings.Replace(name, pagesSegment, "", 1), "/")
	}
	if strings.HasPrefix(name, pagesSegment) {
		return name
	}
	return pagesSegment + name
}
