package agent

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// syncAfterFunc runs f immediately rather than on a real timer, so retry
// tests are deterministic and fast.
func syncAfterFunc(d time.Duration, f func()) { f() }

func TestRetrierSucceedsOnFirstAttempt(t *testing.T) {
	r := NewRetrier(3, FixedBackoff(3*time.Second))
	r.AfterFunc = syncAfterFunc

	calls := 0
	gaveUp := false
	r.Run(func(attempt int) Outcome {
		calls++
		return OutcomeDone
	}, func() { gaveUp = true })

	require.Equal(t, 1, calls)
	require.False(t, gaveUp)
}

func TestRetrierGivesUpAfterMaxAttempts(t *testing.T) {
	r := NewRetrier(3, FixedBackoff(3*time.Second))
	r.AfterFunc = syncAfterFunc

	calls := 0
	gaveUp := false
	r.Run(func(attempt int) Outcome {
		calls++
		return OutcomeRetry
	}, func() { gaveUp = true })

	require.Equal(t, 3, calls)
	require.True(t, gaveUp)
}

func TestRetrierSucceedsAfterRetries(t *testing.T) {
	r := NewRetrier(4, LinearBackoff(3*time.Second))
	r.AfterFunc = syncAfterFunc

	calls := 0
	r.Run(func(attempt int) Outcome {
		calls++
		if attempt == 3 {
			return OutcomeDone
		}
		return OutcomeRetry
	}, func() { t.Fatal("should not give up") })

	require.Equal(t, 3, calls)
}
