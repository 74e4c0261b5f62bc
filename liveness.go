package main

import (
	"context"
	"log"
	"time"
)

// LivenessMonitor is component C8: it ticks over the registry watching each
// participant's last heartbeat, warns past the soft timeout, and evicts
// past the hard timeout with reason "timeout".
type LivenessMonitor struct {
	reg   *Registry
	evict func(id uint32, reason string)
	soft  time.Duration
	hard  time.Duration
}

// NewLivenessMonitor builds a monitor with the package-default soft/hard
// timeouts. Use NewLivenessMonitorWithTimeouts to override them from Config.
func NewLivenessMonitor(reg *Registry, evict func(id uint32, reason string)) *LivenessMonitor {
	return NewLivenessMonitorWithTimeouts(reg, evict, heartbeatSoftTimeout, heartbeatHardTimeout)
}

func NewLivenessMonitorWithTimeouts(reg *Registry, evict func(id uint32, reason string), soft, hard time.Duration) *LivenessMonitor {
	if soft <= 0 {
		soft = heartbeatSoftTimeout
	}
	if hard <= 0 {
		hard = heartbeatHardTimeout
	}
	return &LivenessMonitor{reg: reg, evict: evict, soft: soft, hard: hard}
}

// Run ticks once a second until ctx is canceled, so a participant is evicted
// within about a second of crossing the hard timeout.
func (l *LivenessMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	warned := make(map[uint32]bool)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range l.reg.Snapshot() {
				if p.ID == localHostID {
					// The embedded local host never heartbeats; it has no
					// connection to go stale.
					continue
				}
				age := p.heartbeatAge()
				switch {
				case age >= l.hard:
					log.Printf("liveness: evicting participant %d (%s), silent for %s", p.ID, p.Name, age)
					delete(warned, p.ID)
					l.evict(p.ID, "timeout")
				case age >= l.soft:
					if !warned[p.ID] {
						warned[p.ID] = true
						log.Printf("liveness: participant %d (%s) silent for %s, past soft timeout", p.ID, p.Name, age)
					}
				default:
					delete(warned, p.ID)
				}
			}
		}
	}
}
