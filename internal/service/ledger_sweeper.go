package service

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter is implemented by repository.TokenRepo.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// LedgerSweeper periodically removes expired refresh records, including
// orphans left by a failed issuance.
type LedgerSweeper struct {
	Ledger   ExpiredDeleter
	Interval time.Duration
	Logger   *slog.Logger
}

// Run sweeps once immediately and then every Interval until ctx is
// cancelled.  A non-positive Interval disables the sweeper.
func (s *LedgerSweeper) Run(ctx context.Context) {
	if s.Interval <= 0 {
		s.Logger.Info("ledger sweeper disabled")
		return
	}
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		s.Sweep(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep runs one pass and returns the number of rows removed.
func (s *LedgerSweeper) Sweep(ctx context.Context) int64 {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	n, err := s.Ledger.DeleteExpired(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.Logger.Error("ledger sweep failed", "error", err)
		}
		return 0
	}
	if n > 0 {
		s.Logger.Info("ledger sweep", "removed", n)
	}
	return n
}
