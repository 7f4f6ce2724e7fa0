package gateway

import (
	"github.com/haasonsaas/turnstream/internal/observability"
	"github.com/haasonsaas/turnstream/internal/sessions"
)

// SessionObserver keeps the session metrics in step with store lifecycle
// notifications. Pass it to sessions.WithObserver.
func SessionObserver(metrics *observability.Metrics) sessions.Observer {
	return func(evt sessions.Event) {
		if metrics == nil {
			return
		}
		switch evt.Type {
		case sessions.EventCreated:
			metrics.SessionCreated()
		case sessions.EventDeleted:
			metrics.SessionDeleted()
		case sessions.EventExpired:
			metrics.SessionsSwept(evt.Count)
		}
	}
}
