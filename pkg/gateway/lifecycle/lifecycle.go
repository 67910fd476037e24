// Package lifecycle holds shared process lifecycle state.
package lifecycle

import "sync/atomic"

// Lifecycle tracks whether the service is draining. The readiness probe
// reads it so load balancers stop sending new calls during shutdown.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
