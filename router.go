package offlineworker

import (
	"net/http"
	"path"
	"strings"
)

// RequestClass is the traffic class of an intercepted request.
// Classification is a pure function of the request; nothing is stored.
type RequestClass int

const (
	ClassNavigation RequestClass = iota
	ClassStaticAsset
	ClassAPI
	ClassDefault
)

type strategy int

const (
	strategyNetworkFirst strategy = iota
	strategyStaleWhileRevalidate
)

type route struct {
	strategy strategy
	bucket   string
}

// staticDestinations are the fetch destinations served from the static
// generation.
var staticDestinations = map[string]bool{
	"style":  true,
	"script": true,
	"font":   true,
	"image":  true,
}

// staticExtensions is the static-asset extension set.
var staticExtensions = map[string]bool{
	".svg":   true,
	".css":   true,
	".js":    true,
	".json":  true,
	".woff":  true,
	".woff2": true,
	".ttf":   true,
	".eot":   true,
	".wasm":  true,
	".png":   true,
	".jpg":   true,
	".jpeg":  true,
	".gif":   true,
}

// Classify determines the traffic class of a request.
// Rules are checked in order, first match wins.
func Classify(r *http.Request) RequestClass {
	if isNavigation(r) {
		return ClassNavigation
	}
	if staticDestinations[r.Header.Get("Sec-Fetch-Dest")] ||
		staticExtensions[strings.ToLower(path.Ext(r.URL.Path))] {
		return ClassStaticAsset
	}
	if isAPIPath(r.URL.Path) {
		return ClassAPI
	}
	return ClassDefault
}

// isNavigation reports whether the request is a top-level navigation.
// Sec-Fetch-Mode is authoritative when present; without it, a request
// accepting HTML is treated as a navigation.
func isNavigation(r *http.Request) bool {
	if mode := r.Header.Get("Sec-Fetch-Mode"); mode != "" {
		return mode == "navigate"
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func isAPIPath(p string) bool {
	return strings.Contains(p, "/api/") || strings.Contains(p, "/graphql")
}

// route picks the fetch strategy and generation bucket for a request.
// Navigations default to stale-while-revalidate; the network-first
// variant is a deliberate configuration choice, not a merge of both.
func (a *Worker) route(r *http.Request) route {
	switch Classify(r) {
	case ClassNavigation:
		s := strategyStaleWhileRevalidate
		if a.navigationNetworkFirst {
			s = strategyNetworkFirst
		}
		return route{strategy: s, bucket: a.gen.Static}
	case ClassStaticAsset:
		return route{strategy: strategyStaleWhileRevalidate, bucket: a.gen.Static}
	case ClassAPI:
		return route{strategy: strategyNetworkFirst, bucket: a.gen.Dynamic}
	default:
		return route{strategy: strategyStaleWhileRevalidate, bucket: a.gen.Dynamic}
	}
}
