package usecase

import (
	"context"
	"time"
)

// ReadinessCheck represents a single readiness probe result used by handlers.
type ReadinessCheck struct {
	Name    string `json:"name"`
	OK      bool   `json:"ok"`
	Details string `json:"details,omitempty"`
}

// Probe is one named dependency check.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

// Readiness runs every probe concurrently, each bounded by timeout.
func Readiness(ctx context.Context, timeout time.Duration, probes ...Probe) []ReadinessCheck {
	out := make([]ReadinessCheck, len(probes))
	done := make(chan struct{}, len(probes))
	for i, p := range probes {
		go func(i int, p Probe) {
			defer func() { done <- struct{}{} }()
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			rc := ReadinessCheck{Name: p.Name, OK: true}
			if p.Check == nil {
				rc.OK, rc.Details = false, "not configured"
			} else if err := p.Check(cctx); err != nil {
				rc.OK, rc.Details = false, err.Error()
			}
			out[i] = rc
		}(i, p)
	}
	for range probes {
		<-done
	}
	return out
}

// AllReady reports whether every check passed.
func AllReady(checks []ReadinessCheck) bool {
	for _, c := range checks {
		if !c.OK {
			return false
		}
	}
	return true
}
