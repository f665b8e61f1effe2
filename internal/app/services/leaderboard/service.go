// Package leaderboard computes ranked totals of received credits.
package leaderboard

import (
	"context"

	"github.com/boostly/kudos/internal/app/storage"
	"github.com/boostly/kudos/pkg/logger"
)

// DefaultLimit is the number of entries returned when no limit is given.
const DefaultLimit = 10

// Service aggregates received credits, recognitions and endorsements.
type Service struct {
	store storage.Store
	log   *logger.Logger
}

// New constructs a leaderboard service.
func New(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("leaderboard")
	}
	return &Service{store: store, log: log}
}

// Top returns up to limit entries ordered by credits received descending,
// member id ascending on ties. Members who never received a recognition are
// excluded.
func (s *Service) Top(ctx context.Context, limit int) ([]storage.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var result []storage.LeaderboardEntry
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		result, err = tx.Leaderboard(ctx, limit)
		return err
	})
	return result, err
}
