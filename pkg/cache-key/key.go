package cachekey

import (
	"net/http"
)

const methodSeparator = ":"

// CacheKeyer produces cache keys for requests.
// Only GET requests are ever cached, so a key is simply the method
// plus the request URI (path and query).
type CacheKeyer struct{}

// ForRequest returns the cache key for the given request.
// The caller is responsible for only passing GET requests.
func (c CacheKeyer) ForRequest(r *http.Request) string {
	return r.Method + methodSeparator + r.URL.RequestURI()
}

// ForPath returns the cache key for a GET request to the given path.
func (c CacheKeyer) ForPath(path string) string {
	return http.MethodGet + methodSeparator + path
}
