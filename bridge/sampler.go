package bridge

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// sampledLogger drops log lines above a steady rate. The next line that gets
// through reports how many were suppressed.
type sampledLogger struct {
	logger     *slog.Logger
	limiter    *rate.Limiter
	suppressed atomic.Int64
}

func newSampledLogger(logger *slog.Logger, every time.Duration, burst int) *sampledLogger {
	return &sampledLogger{
		logger:  logger,
		limiter: rate.NewLimiter(rate.Every(every), burst),
	}
}

func (s *sampledLogger) log(level slog.Level, msg string, args ...any) {
	if !s.logger.Enabled(context.Background(), level) {
		return
	}
	if !s.limiter.Allow() {
		s.suppressed.Add(1)
		return
	}
	if n := s.suppressed.Swap(0); n > 0 {
		args = append(args, "suppressed", n)
	}
	s.logger.Log(context.Background(), level, msg, args...)
}

func (s *sampledLogger) Warn(msg string, args ...any) { s.log(slog.LevelWarn, msg, args...) }

func (s *sampledLogger) Error(msg string, args ...any) { s.log(slog.LevelError, msg, args...) }
