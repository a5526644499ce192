package app

import (
	"time"

	"postbot/internal/observability/pprof"
)

// health backs the /healthz endpoint.
func (a *App) health() pprof.Health {
	h := pprof.Health{
		Status:   "ok",
		Channels: len(a.store.Channels()),
		Jobs:     len(a.store.AllJobs()),
	}
	if !a.started.IsZero() {
		h.Uptime = time.Since(a.started).Truncate(time.Second).String()
	}
	entries := a.sched.Entries()
	h.Triggers = len(entries)
	for _, e := range entries {
		if e.Next.IsZero() {
			continue
		}
		if h.NextFiring == nil || e.Next.Before(*h.NextFiring) {
			next := e.Next
			h.NextFiring = &next
		}
	}
	if a.sup != nil {
		h.Goroutines = a.sup.Counters().Active
		if a.sup.Context().Err() != nil {
			h.Status = "stopping"
		}
	}
	return h
}
