// session_sweeper.go implements the SessionSweeper background job, which
// purges expired login sessions. Expired sessions never authenticate either
// way; the sweep just keeps the table from growing without bound.
package jobs

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/pak-sh/pakweb/internal/db/repositories"
)

// SessionSweeper periodically deletes expired sessions.
type SessionSweeper struct {
	sessions *repositories.SessionRepository
	interval time.Duration
	stopChan chan struct{}
}

// NewSessionSweeper creates a sweeper with the given interval (default 1h)
func NewSessionSweeper(db *sql.DB, interval time.Duration) *SessionSweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SessionSweeper{
		sessions: repositories.NewSessionRepository(db),
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called. One
// sweep runs immediately on startup.
func (s *SessionSweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	slog.Info("session sweeper started", "interval", s.interval)
	s.sweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			slog.Info("session sweeper stopped")
			return
		case <-ctx.Done():
			slog.Info("session sweeper context cancelled")
			return
		}
	}
}

// Stop signals the sweep loop to exit.
func (s *SessionSweeper) Stop() {
	close(s.stopChan)
}

func (s *SessionSweeper) sweep(ctx context.Context) {
	removed, err := s.sessions.DeleteExpired(ctx)
	if err != nil {
		slog.Error("session sweep failed", "error", err)
		return
	}
	if removed > 0 {
		slog.Info("purged expired sessions", "removed", removed)
	}
}
