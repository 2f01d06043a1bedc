package offlineworker

import (
	"context"
	"fmt"
	"net/http"

	clienthub "github.com/offline-worker/offline-worker/pkg/client-hub"
)

// rootDocumentPath is the app shell: the navigation fallback served
// when both network and cache miss.
const rootDocumentPath = "/"

const (
	staticBucketPrefix  = "static-cache-"
	dynamicBucketPrefix = "dynamic-cache-"
)

// Generations names the two current cache generation buckets.
// A version bump produces new names; buckets carrying any other name
// are stale and eligible for deletion at activation.
type Generations struct {
	Static  string
	Dynamic string
}

func NewGenerations(version string) Generations {
	return Generations{
		Static:  staticBucketPrefix + version,
		Dynamic: dynamicBucketPrefix + version,
	}
}

// Current reports whether the named bucket belongs to the current
// generation set.
func (g Generations) Current(name string) bool {
	return name == g.Static || name == g.Dynamic
}

// Install opens the current generation buckets and seeds the static
// one with the core assets. A fetch or write failure on any core asset
// aborts the install: an incomplete core set must not become
// installed. Extra assets are seeded best-effort, so one broken icon
// path cannot take the whole app offline.
func (a *Worker) Install(ctx context.Context) error {
	a.log.Info().
		Str("static", a.gen.Static).
		Str("dynamic", a.gen.Dynamic).
		Msg("Installing worker")

	if err := a.cache.OpenBucket(a.gen.Static); err != nil {
		return fmt.Errorf("opening static bucket: %w", err)
	}
	if err := a.cache.OpenBucket(a.gen.Dynamic); err != nil {
		return fmt.Errorf("opening dynamic bucket: %w", err)
	}

	for _, asset := range a.coreAssets {
		if err := a.seedAsset(ctx, asset); err != nil {
			return fmt.Errorf("caching core asset %s: %w", asset, err)
		}
	}
	for _, asset := range a.extraAssets {
		if err := a.seedAsset(ctx, asset); err != nil {
			a.log.Error().Err(err).Str("asset", asset).Msg("Could not cache extra asset")
		}
	}

	a.log.Info().Int("coreAssets", len(a.coreAssets)).Msg("Install complete")
	return nil
}

// seedAsset fetches one asset from the origin and stores it in the
// static generation. Non-2xx responses count as failures: an error
// page must never become the stored copy of an asset.
func (a *Worker) seedAsset(ctx context.Context, asset string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, asset, nil)
	if err != nil {
		return err
	}
	res, err := a.fetchOrigin(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if !isOK(res) {
		return fmt.Errorf("unexpected status %d", res.StatusCode)
	}
	return a.storeResponse(a.gen.Static, a.keyer.ForRequest(req), res)
}

// Activate retires every bucket that is not part of the current
// generation set, then claims connected pages. Cleanup failures are
// logged but never block activation: availability over tidiness.
func (a *Worker) Activate(ctx context.Context) error {
	names, err := a.cache.Buckets()
	if err != nil {
		a.log.Error().Err(err).Msg("Could not enumerate buckets")
		names = nil
	}

	retired := 0
	for _, name := range names {
		if a.gen.Current(name) {
			continue
		}
		if err := a.cache.DeleteBucket(name); err != nil {
			a.log.Error().Err(err).Str("bucket", name).Msg("Could not delete stale bucket")
			continue
		}
		retired++
	}
	if retired > 0 {
		a.updatePending.Store(true)
		a.log.Info().Int("buckets", retired).Msg("Retired stale generations")
	}

	a.claimClients()
	a.log.Info().Msg("Worker activated")
	return nil
}

// claimClients announces activation to every connected page and starts
// the update notification loop.
func (a *Worker) claimClients() {
	if a.hub == nil {
		return
	}
	a.hub.Broadcast(clienthub.Message{Type: clienthub.MsgActivated})
	go a.notifyLoop()
}

// ClearUpdates deletes every non-current bucket and stops pending
// update broadcasts. Wired to the CLEAR_UPDATES page message.
func (a *Worker) ClearUpdates() error {
	a.updatePending.Store(false)

	names, err := a.cache.Buckets()
	if err != nil {
		return err
	}
	var firstErr error
	deleted := 0
	for _, name := range names {
		if a.gen.Current(name) {
			continue
		}
		if err := a.cache.DeleteBucket(name); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		deleted++
	}
	a.log.Info().Int("buckets", deleted).Msg("Cleared stale generations")
	return firstErr
}
