package offlineworker

import (
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/offline-worker/offline-worker/cache"
	cachekey "github.com/offline-worker/offline-worker/pkg/cache-key"
	clienthub "github.com/offline-worker/offline-worker/pkg/client-hub"
	snapshot "github.com/offline-worker/offline-worker/pkg/response-snapshot"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	// Storage for cache generations.
	Cache cache.CacheProvider
	// URL of the origin server.
	// Origins with paths are not supported.
	OriginURL url.URL
	// Hostname to use for HTTP requests and TLS negotiation.
	// Use if needed if e.g. the origin URL is just an IP address.
	OriginHost string
	// Logger to use. A console logger is used if nil.
	Logger *zerolog.Logger
	// Version token for the current cache generations.
	// Bump it to retire previously cached content on the next activation.
	CacheVersion string
	// Assets seeded into the static generation at install time.
	// A fetch or write failure for any of these aborts the install.
	CoreAssets []string
	// Additional assets seeded at install time on a best-effort basis.
	ExtraAssets []string
	// Route navigations through the network-first strategy instead of
	// stale-while-revalidate.
	NavigationNetworkFirst bool
	// Hub for page messaging. Update notifications are disabled if nil.
	Hub *clienthub.Hub
	// Delay before the first update broadcast after activation.
	NotifyDelay time.Duration
	// Interval between repeated update broadcasts.
	NotifyInterval time.Duration
}

// Worker is the interception point for all origin traffic.
// One instance corresponds to one worker lifecycle: Install, Activate,
// then serve. All lifetime state (statistics included) lives on the
// instance and is gone on restart.
type Worker struct {
	cache        cache.CacheProvider
	keyer        cachekey.CacheKeyer
	log          zerolog.Logger
	gen          Generations
	client       *http.Client
	reverseproxy httputil.ReverseProxy
	rewrite      func(*http.Request)

	coreAssets             []string
	extraAssets            []string
	navigationNetworkFirst bool

	hub            *clienthub.Hub
	notifyDelay    time.Duration
	notifyInterval time.Duration
	updatePending  atomic.Bool

	flight singleflight.Group

	requests atomic.Uint64
	hits     atomic.Uint64
}

// CreateWorker initializes the offline worker instance.
// It does not touch the cache yet: call Install and Activate, in that
// order, before serving traffic.
func CreateWorker(config Config) *Worker {
	// use console logger if not specified in config
	var logger zerolog.Logger
	if config.Logger == nil {
		logger = zerolog.New(zerolog.NewConsoleWriter())
	} else {
		logger = *config.Logger
	}

	// create a child logger and add defaults
	logger = logger.With().
		Str("origin", config.OriginURL.String()).
		Logger()

	version := config.CacheVersion
	if version == "" {
		version = "v1"
	}

	a := &Worker{
		cache:                  config.Cache,
		log:                    logger,
		gen:                    NewGenerations(version),
		coreAssets:             config.CoreAssets,
		extraAssets:            config.ExtraAssets,
		navigationNetworkFirst: config.NavigationNetworkFirst,
		hub:                    config.Hub,
		notifyDelay:            config.NotifyDelay,
		notifyInterval:         config.NotifyInterval,
	}
	if len(a.coreAssets) == 0 {
		a.coreAssets = []string{rootDocumentPath, "/favicon.ico"}
	}
	if a.notifyDelay == 0 {
		a.notifyDelay = 3 * time.Second
	}
	if a.notifyInterval == 0 {
		a.notifyInterval = time.Minute
	}

	host := config.OriginURL.Host
	hostHeader := host
	transport := http.DefaultTransport
	if config.OriginHost != "" {
		hostHeader = config.OriginHost
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				ServerName: config.OriginHost,
			},
		}
	}

	a.rewrite = createRewrite(config.OriginURL.Scheme, host, hostHeader)
	a.client = &http.Client{Transport: transport}
	a.reverseproxy = httputil.ReverseProxy{
		Director:  func(req *http.Request) { a.rewrite(req) },
		Transport: transport,
	}

	return a
}

// AttachHub wires a client hub to the worker. Call before Activate.
func (a *Worker) AttachHub(h *clienthub.Hub) {
	a.hub = h
}

// ServeHTTP implements the http.Handler interface.
// GET requests are routed to a fetch strategy; everything else passes
// through to the origin untouched.
func (a *Worker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.log.Trace().Msgf("passing through %s %s", r.Method, r.URL.String())
		a.reverseproxy.ServeHTTP(w, r)
		return
	}
	a.requests.Add(1)
	route := a.route(r)
	switch route.strategy {
	case strategyNetworkFirst:
		a.networkFirst(w, r, route.bucket)
	case strategyStaleWhileRevalidate:
		a.staleWhileRevalidate(w, r, route.bucket)
	}
}

// fetchOrigin performs a live network fetch for the given request.
// The inbound request is not modified; a fresh outbound request is
// built against the origin.
func (a *Worker) fetchOrigin(r *http.Request) (*http.Response, error) {
	req, err := http.NewRequestWithContext(r.Context(), r.Method, r.URL.RequestURI(), nil)
	if err != nil {
		return nil, err
	}
	copyHeader(req.Header, r.Header)
	a.rewrite(req)
	return a.client.Do(req)
}

// storeResponse snapshots an origin response into the given bucket.
// The response body is readable again after the call.
func (a *Worker) storeResponse(bucket, key string, res *http.Response) error {
	bts, err := snapshot.ResponseToBytes(res)
	if err != nil {
		return err
	}
	a.log.Trace().Str("bucket", bucket).Str("key", key).Msg("Writing to cache")
	return a.cache.Put(bucket, key, bts)
}

// sendResponse writes a live origin response to the client.
func (a *Worker) sendResponse(w http.ResponseWriter, r *http.Request, res *http.Response, status string) {
	if res.Body != nil {
		defer res.Body.Close()
	}
	copyHeader(w.Header(), res.Header)
	w.Header().Set("Cache-Status", "offline-worker; "+status)
	w.WriteHeader(res.StatusCode)
	bytesWritten, err := io.Copy(w, res.Body)
	if err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
	a.logRequest(r, status)
	a.log.Trace().Msgf("Wrote body (%d bytes)", bytesWritten)
}

// sendStored writes a stored snapshot to the client.
// It reports whether the snapshot could be decoded and sent.
func (a *Worker) sendStored(w http.ResponseWriter, r *http.Request, bts []byte, status string) bool {
	res, err := snapshot.BytesToResponse(bts, r)
	if err != nil {
		a.log.Error().Err(err).Str("url", r.URL.String()).Msg("Could not decode stored snapshot")
		return false
	}
	a.sendResponse(w, r, res, status)
	return true
}

// sendSnapshot is sendStored for the cache-hit path.
func (a *Worker) sendSnapshot(w http.ResponseWriter, r *http.Request, bts []byte) bool {
	if a.sendStored(w, r, bts, "hit") {
		a.hits.Add(1)
		return true
	}
	return false
}

func (a *Worker) logRequest(r *http.Request, status string) {
	a.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("cacheStatus", status).
		Uint64("requests", a.requests.Load()).
		Uint64("hits", a.hits.Load()).
		Msg("Sending response to client")
}

func isOK(res *http.Response) bool {
	return res.StatusCode >= 200 && res.StatusCode < 300
}

func createRewrite(scheme, host, hostHeader string) func(req *http.Request) {
	return func(req *http.Request) {
		req.URL.Scheme = scheme
		req.URL.Host = host
		if hostHeader != "" {
			req.Host = hostHeader
		}
	}
}

func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		// this is a workaround to remove default headers sent by an upstream proxy
		// some servers do not like the presence of these headers in the downstream request
		if k != "X-Forwarded-For" && k != "X-Forwarded-Proto" && k != "X-Forwarded-Host" {
			for _, v := range vv {
				dst.Add(k, v)
			}
		}
	}
}
