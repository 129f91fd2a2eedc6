package media

import (
	"strings"
)

// mediaSubpath is the service path under which stored media is served.
const mediaSubpath = "/media/"

// Resolver turns service-relative media references into fetchable
// locators rooted at the service origin.
type Resolver struct {
	origin string
}

// NewResolver creates a resolver for the given service origin,
// e.g. "http://localhost:8000".
func NewResolver(origin string) *Resolver {
	return &Resolver{origin: strings.TrimRight(origin, "/")}
}

// ResolveDisplayLocator turns a reference into a final fetchable
// locator. Precedence: an explicit local preview wins, an absolute
// URL passes through unchanged, a known media subpath is rewritten to
// the service origin, and anything else gets a generic same-origin
// rewrite.
func (r *Resolver) ResolveDisplayLocator(ref, localPreview string) string {
	if localPreview != "" {
		return localPreview
	}
	if ref == "" {
		return ""
	}
	if isAbsolute(ref) {
		return ref
	}

	path := ref
	// The service stores media under media/<category>s/<file> and
	// returns the relative path; normalize to a rooted path.
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if i := strings.Index(path, mediaSubpath); i >= 0 {
		return r.origin + path[i:]
	}
	return r.origin + path
}

func isAbsolute(ref string) bool {
	return strings.HasPrefix(ref, "http://") ||
		strings.HasPrefix(ref, "https://") ||
		strings.HasPrefix(ref, "data:")
}
