package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// staleAfter is how long expired or consumed pairing codes are kept for auditing
const staleAfter = 24 * time.Hour

// PairingCodeCleaner deletes pairing codes that expired or were consumed before a cutoff
type PairingCodeCleaner interface {
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

type Scheduler struct {
	cron     *cron.Cron
	schedule string
	codes    PairingCodeCleaner
	log      zerolog.Logger
	now      func() time.Time
}

// NewScheduler creates a scheduler; schedule uses the six-field cron format with seconds
func NewScheduler(schedule string, codes PairingCodeCleaner, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithSeconds()),
		schedule: schedule,
		codes:    codes,
		log:      log,
		now:      time.Now,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.cleanupPairingCodes); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish, at most until ctx is done
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) cleanupPairingCodes() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.codes.DeleteStale(ctx, s.now().Add(-staleAfter))
	if err != nil {
		s.log.Error().Err(err).Msg("pairing code cleanup failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("deleted", n).Msg("pairing codes cleaned up")
	}
}
