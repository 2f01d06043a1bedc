package offlineworker

import (
	"encoding/json"
	"net/http"
)

const (
	offlineAPIMessage = "Offline: data unavailable."
	offlineTextBody   = "Resource unavailable offline"
)

// offlineAPIBody is the synthesized body served when an API call
// misses both network and cache.
type offlineAPIBody struct {
	Offline bool   `json:"offline"`
	Message string `json:"message"`
}

// networkFirst tries the live network first, falling back to the cache
// and then to a synthesized offline response. Error responses from the
// origin are returned as-is and never cached.
func (a *Worker) networkFirst(w http.ResponseWriter, r *http.Request, bucket string) {
	res, err := a.fetchOrigin(r)
	if err == nil {
		if isOK(res) {
			key := a.keyer.ForRequest(r)
			if err := a.storeResponse(bucket, key, res); err != nil {
				a.log.Error().Err(err).Str("key", key).Msg("Could not write cache entry")
			}
		}
		a.sendResponse(w, r, res, "fwd=miss")
		return
	}

	a.log.Debug().Err(err).Str("url", r.URL.String()).Msg("Network fetch failed, trying cache")
	if bts, ok, err := a.cache.Get(bucket, a.keyer.ForRequest(r)); err != nil {
		a.log.Error().Err(err).Msg("Could not retrieve from cache")
	} else if ok && a.sendSnapshot(w, r, bts) {
		return
	}
	a.sendOfflineFallback(w, r)
}

// sendOfflineFallback is the last tier of the fallback chain: a
// synthesized JSON body for API calls, the cached app shell for
// navigations, plain text for everything else.
func (a *Worker) sendOfflineFallback(w http.ResponseWriter, r *http.Request) {
	if isAPIPath(r.URL.Path) {
		body, err := json.Marshal(offlineAPIBody{Offline: true, Message: offlineAPIMessage})
		if err != nil {
			// a two-field struct cannot fail to marshal
			panic(err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(body); err != nil {
			a.log.Error().Err(err).Msg("Could not write offline response")
		}
		a.logRequest(r, "offline-json")
		return
	}

	if isNavigation(r) {
		// fall back to the cached app shell
		if bts, ok, err := a.cache.Get(a.gen.Static, a.keyer.ForPath(rootDocumentPath)); err != nil {
			a.log.Error().Err(err).Msg("Could not retrieve app shell")
		} else if ok && a.sendSnapshot(w, r, bts) {
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(offlineTextBody)); err != nil {
		a.log.Error().Err(err).Msg("Could not write offline response")
	}
	a.logRequest(r, "offline-text")
}
