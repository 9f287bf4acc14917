package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/kurosawa-kuro/fullstack-openapi-js-poc/internal/repository"
)

// SweepResult counts the rows removed by one sweep.
type SweepResult struct {
	Blacklist     int
	RefreshTokens int
	ResetTokens   int
}

// Sweeper periodically reaps expired blacklist entries, expired refresh
// tokens and used or expired reset tokens.
type Sweeper struct {
	Blacklist *repository.BlacklistRepo
	Refresh   *repository.TokenRepo
	Resets    *repository.ResetRepo
	Interval  time.Duration
	Log       *zap.Logger
}

// Run sweeps once per Interval until ctx is cancelled. Blocking call.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.Interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	s.Log.Info("sweeper started", zap.Duration("interval", s.Interval))
	for {
		select {
		case <-ctx.Done():
			s.Log.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			res, err := s.SweepOnce(ctx)
			if err != nil {
				s.Log.Error("sweep failed", zap.Error(err))
				continue
			}
			s.Log.Debug("sweep done",
				zap.Int("blacklist", res.Blacklist),
				zap.Int("refresh_tokens", res.RefreshTokens),
				zap.Int("reset_tokens", res.ResetTokens))
		}
	}
}

// SweepOnce runs the three cleanups in turn and stops at the first error.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var (
		res SweepResult
		err error
	)
	if res.Blacklist, err = s.Blacklist.DeleteExpired(ctx); err != nil {
		return res, err
	}
	if res.RefreshTokens, err = s.Refresh.DeleteExpired(ctx); err != nil {
		return res, err
	}
	if res.ResetTokens, err = s.Resets.DeleteStale(ctx); err != nil {
		return res, err
	}
	return res, nil
}
