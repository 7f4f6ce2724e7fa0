package sessions

import (
	"sort"
	"time"
)

// isIdle reports whether a session last active at last has exceeded timeout
// at now. A session exactly at the boundary is kept.
func isIdle(last, now time.Time, timeout time.Duration) bool {
	return now.Sub(last) > timeout
}

// SweepExpired deletes every session idle for longer than the configured
// timeout and returns the removed ids. Sessions reported busy are skipped
// regardless of idle time. A single EventExpired is emitted when anything
// was removed.
func (s *Store) SweepExpired(now time.Time) []string {
	s.mu.Lock()
	var expired []*record
	for id, rec := range s.sessions {
		if !isIdle(rec.lastActivity, now, s.cfg.Timeout) {
			continue
		}
		if s.busy != nil && s.busy(id) {
			continue
		}
		delete(s.sessions, id)
		expired = append(expired, rec)
	}
	s.mu.Unlock()

	if len(expired) == 0 {
		return nil
	}

	ids := make([]string, 0, len(expired))
	for _, rec := range expired {
		s.closeHandle(rec)
		ids = append(ids, rec.id)
	}
	sort.Strings(ids)

	s.logger.Info("expired sessions removed", "count", len(ids))
	s.notify(Event{
		Type:       EventExpired,
		SessionIDs: ids,
		Count:      len(ids),
		Time:       now,
	})
	return ids
}
