package poller

import (
	"context"
	"time"
	"vidscribe/internal/speech"
	"vidscribe/pkg/logger"

	"go.uber.org/zap"
)

const DefaultInterval = 5 * time.Second

// StatusChecker performs a single status check; it must not retry internally.
type StatusChecker interface {
	GetStatus(ctx context.Context, handle speech.JobHandle) (*speech.JobStatus, error)
}

type Config struct {
	// Interval is the fixed wait between consecutive status checks
	Interval time.Duration
	// MaxAttempts bounds the number of status checks, 0 for no bound
	MaxAttempts int
	// MaxWait bounds the wall-clock time from the first check, 0 for no bound
	MaxWait time.Duration
	// OnTransition, when set, is called synchronously for every transition
	OnTransition func(Transition)
}

// Poller waits for one long-running operation to reach a terminal state.
type Poller struct {
	checker      StatusChecker
	interval     time.Duration
	maxAttempts  int
	maxWait      time.Duration
	onTransition func(Transition)

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func New(checker StatusChecker, cfg Config) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	return &Poller{
		checker:      checker,
		interval:     cfg.Interval,
		maxAttempts:  cfg.MaxAttempts,
		maxWait:      cfg.MaxWait,
		onTransition: cfg.OnTransition,
		sleep:        sleepContext,
		now:          time.Now,
	}
}

// Wait polls handle until the operation is done and returns its result, which
// may be nil when the finished operation carried no response. The response that
// reported done is the result; there is no extra fetch afterwards.
//
// Errors: *speech.PollError (Failed), *OperationFailedError (Failed),
// *TimeoutError (TimedOut), *CancelledError (Cancelled).
func (p *Poller) Wait(ctx context.Context, handle speech.JobHandle) (*speech.TranscriptResult, error) {
	log := logger.With(zap.Stringer("operation", handle))

	state := StateSubmitted
	start := p.now()
	attempt := 0

	move := func(to State) {
		t := Transition{
			Operation: handle.Name(),
			From:      state,
			To:        to,
			Attempt:   attempt,
			Elapsed:   p.now().Sub(start),
		}
		state = to
		if to.Terminal() || t.From != t.To {
			log.Info("Operation state changed",
				zap.Stringer("from", t.From),
				zap.Stringer("state", t.To),
				zap.Int("attempt", attempt),
				zap.Duration("elapsed", t.Elapsed))
		}
		if p.onTransition != nil {
			p.onTransition(t)
		}
	}

	cancelled := func(err error) (*speech.TranscriptResult, error) {
		move(StateCancelled)
		return nil, &CancelledError{Operation: handle.Name(), Err: err}
	}

	for {
		if err := ctx.Err(); err != nil {
			return cancelled(err)
		}

		attempt++
		move(StatePolling)

		status, err := p.checker.GetStatus(ctx, handle)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return cancelled(ctxErr)
			}
			move(StateFailed)
			log.Error("Status check failed", zap.Int("attempt", attempt), zap.Error(err))
			return nil, err
		}

		if status.Done {
			if status.Error != nil {
				move(StateFailed)
				return nil, &OperationFailedError{Operation: handle.Name(), Err: status.Error}
			}
			move(StateDone)
			return status.Result, nil
		}

		elapsed := p.now().Sub(start)
		log.Debug("Recognition in progress",
			zap.Int("attempt", attempt),
			zap.Int("progress", status.ProgressPercent),
			zap.Duration("elapsed", elapsed))

		if p.maxAttempts > 0 && attempt >= p.maxAttempts {
			move(StateTimedOut)
			return nil, &TimeoutError{Operation: handle.Name(), Attempts: attempt, Elapsed: elapsed}
		}
		if p.maxWait > 0 && elapsed+p.interval > p.maxWait {
			move(StateTimedOut)
			return nil, &TimeoutError{Operation: handle.Name(), Attempts: attempt, Elapsed: elapsed}
		}

		if err := p.sleep(ctx, p.interval); err != nil {
			return cancelled(err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
