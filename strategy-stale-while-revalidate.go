package offlineworker

import (
	"context"
	"net/http"

	snapshot "github.com/offline-worker/offline-worker/pkg/response-snapshot"
)

// staleWhileRevalidate serves the stored snapshot immediately when one
// exists and refreshes it from the network in the background. On a
// cache miss the caller waits for the network instead; a network
// failure on that path propagates to the caller as a gateway error.
func (a *Worker) staleWhileRevalidate(w http.ResponseWriter, r *http.Request, bucket string) {
	key := a.keyer.ForRequest(r)
	bts, ok, err := a.cache.Get(bucket, key)
	if err != nil {
		a.log.Error().Err(err).Str("key", key).Msg("Could not retrieve from cache")
	}
	if ok {
		// refresh off the critical path; the response below is served
		// from the snapshot regardless of how the refresh settles
		revalidateReq := detachRequest(r)
		go func() {
			if _, err := a.refresh(revalidateReq, bucket, key); err != nil {
				a.log.Error().Err(err).Str("key", key).Msg("Background revalidation failed")
			}
		}()
		if a.sendSnapshot(w, r, bts) {
			return
		}
		// unreadable snapshot, fall through to the network
	}

	fresh, err := a.refresh(r, bucket, key)
	if err != nil {
		a.log.Error().Err(err).Str("url", r.URL.String()).Msg("Network fetch failed with no cache entry")
		http.Error(w, "origin unreachable", http.StatusBadGateway)
		return
	}
	if !a.sendStored(w, r, fresh, "fwd=miss") {
		http.Error(w, "origin unreachable", http.StatusBadGateway)
	}
}

// refresh fetches the request from the origin and stores the result if
// it is a success response. Concurrent refreshes for the same key and
// bucket collapse into a single origin fetch; every caller gets the
// same snapshot bytes. The flight key carries the bucket so the same
// path headed for different buckets still writes each of them. A write
// failure is logged, not returned: by the time it happens the response
// may already have been served.
func (a *Worker) refresh(r *http.Request, bucket, key string) ([]byte, error) {
	v, err, _ := a.flight.Do(bucket+"|"+key, func() (interface{}, error) {
		res, err := a.fetchOrigin(r)
		if err != nil {
			return nil, err
		}
		defer res.Body.Close()
		bts, err := snapshot.ResponseToBytes(res)
		if err != nil {
			return nil, err
		}
		if isOK(res) {
			if err := a.cache.Put(bucket, key, bts); err != nil {
				a.log.Error().Err(err).Str("key", key).Msg("Could not write cache entry")
			}
		}
		return bts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// detachRequest clones a request onto a background context so a
// revalidation can outlive the request that triggered it.
func detachRequest(r *http.Request) *http.Request {
	return r.Clone(context.Background())
}
