package scheduler

import (
	"context"
	"time"

	"github.com/manzil-bh/manzil-backend/internal/logging"
)

type Reindexer interface {
	Run(ctx context.Context) (int, error)
}

type ChallengePurger interface {
	PurgeExpiredChallenges(ctx context.Context, before time.Time) (int64, error)
}

type OrphanPurger interface {
	PurgeOrphans(ctx context.Context) (int, error)
}

func ReindexJob(spec string, r Reindexer) Job {
	return Job{
		Name:    "search-reindex",
		Spec:    spec,
		Timeout: 2 * time.Minute,
		Run: func(ctx context.Context) error {
			_, err := r.Run(ctx)
			return err
		},
	}
}

// PurgeJob deletes expired OTP challenges and, when images is non-nil,
// image rows left behind by deleted listings.
func PurgeJob(spec string, challenges ChallengePurger, images OrphanPurger, now func() time.Time) Job {
	if now == nil {
		now = time.Now
	}
	return Job{
		Name:    "purge",
		Spec:    spec,
		Timeout: time.Minute,
		Run: func(ctx context.Context) error {
			n, err := challenges.PurgeExpiredChallenges(ctx, now())
			if err != nil {
				return err
			}
			log := logging.FromContext(ctx)
			log.Info("expired challenges purged", "rows", n)
			if images == nil {
				return nil
			}
			m, err := images.PurgeOrphans(ctx)
			if err != nil {
				return err
			}
			log.Info("orphaned images purged", "rows", m)
			return nil
		},
	}
}
