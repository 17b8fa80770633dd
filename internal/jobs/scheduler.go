package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// TokenPurger deletes ephemeral tokens that expired or were consumed before
// the given instant.
type TokenPurger interface {
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

const (
	purgeSchedule = "0 0 3 * * *"
	purgeTimeout  = 2 * time.Minute
)

type Scheduler struct {
	cron   *cron.Cron
	tokens TokenPurger
	log    zerolog.Logger
	now    func() time.Time
}

func NewScheduler(tokens TokenPurger, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	return &Scheduler{
		cron:   c,
		tokens: tokens,
		log:    log,
		now:    time.Now,
	}
}

func (s *Scheduler) Start() error {
	if s.tokens == nil {
		return nil
	}

	if _, err := s.cron.AddFunc(purgeSchedule, s.purgeTokens); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running job to finish or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn().Msg("scheduler stop timed out with a job still running")
	}
}

func (s *Scheduler) purgeTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	started := s.now()
	removed, err := s.tokens.PurgeExpired(ctx, started.UTC())
	if err != nil {
		s.log.Error().Err(err).Msg("token purge failed")
		return
	}
	s.log.Info().
		Int64("removed", removed).
		Dur("took", s.now().Sub(started)).
		Msg("expired tokens purged")
}
