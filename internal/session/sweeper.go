// ABOUTME: Background removal of idle sessions that have no subscribers
// ABOUTME: Runs on a ticker until the store is closed

package session

import (
	"context"
	"time"
)

// sweepLoop periodically removes idle sessions
func (s *Store) sweepLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdle(); n > 0 {
				s.logger.Info("swept idle sessions", "count", n)
			}
		}
	}
}

// SweepIdle deletes sessions idle for longer than the configured timeout
// that have no subscribers, and returns how many were removed. It does
// nothing when no idle timeout is configured.
func (s *Store) SweepIdle() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().UTC().Add(-s.idleTimeout)

	s.mu.Lock()
	var stale []*record
	for id, r := range s.sessions {
		r.mu.Lock()
		idle := len(r.subs) == 0 && r.lastActive.Before(cutoff)
		r.mu.Unlock()
		if idle {
			stale = append(stale, r)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, r := range stale {
		r.close()
		s.logger.Debug("idle session removed", "session_id", r.id)
		s.mirrorDelete(r.id)
	}
	return len(stale)
}
