package agent

import "time"

// Outcome classifies the result of one attempt of a retrying operation.
type Outcome int

const (
	// OutcomeDone means the operation succeeded or failed permanently; stop.
	OutcomeDone Outcome = iota
	// OutcomeRetry means the attempt failed transiently; schedule another.
	OutcomeRetry
)

// Retrier runs attempt repeatedly, waiting backoff(attemptNumber) between
// tries, until attempt reports OutcomeDone or maxAttempts is exhausted. It
// factors out the nested retry-closure pattern that recurs across the
// bootstrap, discovery, and keepalive components: each retrying step is
// otherwise a small ad-hoc state machine of {attempt, max, backoff}.
//
// afterFunc is injected so callers can substitute a deterministic scheduler
// in tests instead of a real timer.
type Retrier struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	AfterFunc   func(d time.Duration, f func())
}

// NewRetrier returns a Retrier using time.AfterFunc as its scheduler.
func NewRetrier(maxAttempts int, backoff func(attempt int) time.Duration) *Retrier {
	return &Retrier{
		MaxAttempts: maxAttempts,
		Backoff:     backoff,
		AfterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Run starts the first attempt immediately and reschedules via AfterFunc
// until attempt returns OutcomeDone, onGiveUp is called once if the attempt
// budget is exhausted without success.
func (r *Retrier) Run(attempt func(attemptNum int) Outcome, onGiveUp func()) {
	r.run(1, attempt, onGiveUp)
}

func (r *Retrier) run(attemptNum int, attempt func(int) Outcome, onGiveUp func()) {
	if attempt(attemptNum) == OutcomeDone {
		return
	}
	if attemptNum >= r.MaxAttempts {
		if onGiveUp != nil {
			onGiveUp()
		}
		return
	}
	r.AfterFunc(r.Backoff(attemptNum), func() {
		r.run(attemptNum+1, attempt, onGiveUp)
	})
}

// FixedBackoff returns a constant backoff duration, used for bootstrap steps
// and discovery retries (a fixed 3s per the agreed baseline).
func FixedBackoff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// LinearBackoff returns attempt*unit, used for the symmetric send-data
// retry (3*attempt seconds).
func LinearBackoff(unit time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration { return time.Duration(attempt) * unit }
}
