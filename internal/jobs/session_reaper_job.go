package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SessionReaperJobName is the name of the idle session reaper job
const SessionReaperJobName = "session_reaper"

// SessionReaper closes editing sessions that have been idle for too long.
type SessionReaper interface {
	ReapIdleSessions(ctx context.Context, ttl time.Duration) int
	SessionCount() int
}

// SessionReaperJob releases idle invoice sessions and their preview buffers.
type SessionReaperJob struct {
	sessions SessionReaper
	ttl      time.Duration
	logger   *zap.Logger
	timeout  time.Duration
}

func NewSessionReaperJob(sessions SessionReaper, ttl time.Duration, logger *zap.Logger, timeout time.Duration) *SessionReaperJob {
	return &SessionReaperJob{
		sessions: sessions,
		ttl:      ttl,
		logger:   logger,
		timeout:  timeout,
	}
}

// Run is called by the scheduler according to the cron expression.
func (j *SessionReaperJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	reaped := j.sessions.ReapIdleSessions(ctx, j.ttl)
	if reaped == 0 {
		return
	}

	j.logger.Info("idle invoice sessions closed",
		zap.Int("reaped", reaped),
		zap.Int("remaining", j.sessions.SessionCount()),
		zap.Duration("idle_ttl", j.ttl),
		zap.Duration("duration", time.Since(start)))
}
