package keeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"keeper-vault/internal/domain"
	"keeper-vault/internal/solana"
)

// Schedule fires one signal for one owner on a cron spec (with seconds field).
type Schedule struct {
	Spec   string            `yaml:"spec"`
	Owner  solana.PublicKey  `yaml:"owner"`
	Signal domain.SignalType `yaml:"signal_type"`
}

// CronSignalSource emits signals on fixed schedules.
type CronSignalSource struct {
	schedules []Schedule
	location  *time.Location
	logger    *log.Logger
}

// NewCronSignalSource creates a cron source. A nil location selects UTC.
func NewCronSignalSource(schedules []Schedule, location *time.Location, logger *log.Logger) *CronSignalSource {
	if location == nil {
		location = time.UTC
	}
	if logger == nil {
		logger = log.Default()
	}
	return &CronSignalSource{schedules: schedules, location: location, logger: logger}
}

// Name returns the source name.
func (s *CronSignalSource) Name() string { return "cron" }

// Run registers every schedule and blocks until ctx is done.
// A tick runs the handler synchronously; a tick that fires while the previous
// one for the same schedule is still running is skipped.
func (s *CronSignalSource) Run(ctx context.Context, handle Handler) error {
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(s.location),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(s.logger))),
	)
	for _, sched := range s.schedules {
		sched := sched
		if !sched.Signal.Valid() {
			return fmt.Errorf("schedule %q: %w", sched.Spec, domain.ErrInvalidSignalType)
		}
		if _, err := c.AddFunc(sched.Spec, func() { s.fire(ctx, sched, handle) }); err != nil {
			return fmt.Errorf("register schedule %q: %w", sched.Spec, err)
		}
	}

	c.Start()
	s.logger.Printf("cron source started with %d schedules", len(s.schedules))
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Printf("cron source stopped")
	return nil
}

func (s *CronSignalSource) fire(ctx context.Context, sched Schedule, handle Handler) {
	tick := time.Now().In(s.location).Truncate(time.Second).Unix()
	sig := &Signal{
		Owner:     sched.Owner,
		Type:      sched.Signal,
		Timestamp: tick,
		Source:    s.Name(),
		Offset:    tick,
	}
	sig.ensureID()
	if err := handle(ctx, sig); err != nil {
		s.logger.Printf("cron signal owner=%s type=%s: %v", sched.Owner.Short(), sched.Signal, err)
	}
}
