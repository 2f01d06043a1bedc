package offlineworker

import (
	"time"

	clienthub "github.com/offline-worker/offline-worker/pkg/client-hub"
)

// notifyLoop tells connected pages that a new generation is active:
// once after the activation delay, then at the notify interval until a
// page acknowledges with CLEAR_UPDATES. The initial delay keeps the
// broadcast from racing the activation itself.
func (a *Worker) notifyLoop() {
	a.log.Info().
		Dur("delay", a.notifyDelay).
		Dur("interval", a.notifyInterval).
		Msg("Starting update notification loop")

	time.Sleep(a.notifyDelay)
	for {
		if a.updatePending.Load() {
			a.log.Debug().Int("clients", a.hub.Count()).Msg("Broadcasting update notification")
			a.hub.Broadcast(clienthub.Message{Type: clienthub.MsgUpdateAvailable})
		}
		time.Sleep(a.notifyInterval)
	}
}
