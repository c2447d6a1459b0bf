package cards

import (
	"context"
	"time"

	"golang.org/x/exp/slog"

	"github.com/nastian/bankcards/internal/expiry"
)

// Sweeper periodically counts expired and reissue-due cards and reports
// them through logs and metrics. It never rewrites status: expiry stays a
// derived predicate, so there is no second source of truth to drift.
type Sweeper struct {
	repo       *Repository
	metrics    *Metrics
	logger     *slog.Logger
	windowDays int
	now        func() time.Time
}

func NewSweeper(repo *Repository, metrics *Metrics, logger *slog.Logger, windowDays int) *Sweeper {
	if windowDays <= 0 {
		windowDays = 30
	}
	return &Sweeper{
		repo:       repo,
		metrics:    metrics,
		logger:     logger.With(slog.String("component", "sweep")),
		windowDays: windowDays,
		now:        time.Now,
	}
}

// Run performs one sweep over all cards.
func (s *Sweeper) Run(ctx context.Context) error {
	const page = 500
	now := s.now()
	var expired, reissueDue int
	for offset := 0; ; offset += page {
		cards, err := s.repo.ListCards(ctx, "", "", page, offset)
		if err != nil {
			s.logger.Error("sweep failed", "err", err)
			return err
		}
		if len(cards) == 0 {
			break
		}
		for _, card := range cards {
			switch {
			case expiry.IsExpired(card.ExpirationDate, now):
				expired++
			case expiry.ReissueDue(card.ExpirationDate, now, s.windowDays):
				reissueDue++
			}
		}
		if len(cards) < page {
			break
		}
	}

	s.metrics.SweepObserved(expired, reissueDue)
	s.logger.Info("expiry sweep",
		slog.Int("expired", expired),
		slog.Int("reissue_due", reissueDue),
		slog.Int("window_days", s.windowDays),
	)
	return nil
}
