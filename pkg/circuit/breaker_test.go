package circuit_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terminal-bench/vestcore/pkg/circuit"
)

var errBroker = errors.New("broker down")

func TestBreakerTripsAfterMaxFailures(t *testing.T) {
	b := circuit.New(circuit.Config{MaxFailures: 3, Cooldown: time.Minute})

	for i := 0; i < 3; i++ {
		err := b.Do(func() error { return errBroker })
		assert.ErrorIs(t, err, errBroker)
	}
	assert.Equal(t, circuit.Open, b.State())

	// While open, calls are rejected without running fn.
	ran := false
	err := b.Do(func() error { ran = true; return nil })
	assert.ErrorIs(t, err, circuit.ErrOpen)
	assert.False(t, ran)
}

func TestBreakerSuccessResetsCount(t *testing.T) {
	b := circuit.New(circuit.Config{MaxFailures: 2, Cooldown: time.Minute})

	require.Error(t, b.Do(func() error { return errBroker }))
	require.NoError(t, b.Do(func() error { return nil }))
	require.Error(t, b.Do(func() error { return errBroker }))

	// Interleaved successes keep the breaker closed.
	assert.Equal(t, circuit.Closed, b.State())
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := circuit.New(circuit.Config{MaxFailures: 1, Cooldown: 10 * time.Millisecond})

	require.Error(t, b.Do(func() error { return errBroker }))
	require.Equal(t, circuit.Open, b.State())

	time.Sleep(20 * time.Millisecond)

	t.Run("failed probe re-opens", func(t *testing.T) {
		err := b.Do(func() error { return errBroker })
		assert.ErrorIs(t, err, errBroker)
		assert.Equal(t, circuit.Open, b.State())
	})

	time.Sleep(20 * time.Millisecond)

	t.Run("successful probe closes", func(t *testing.T) {
		require.NoError(t, b.Do(func() error { return nil }))
		assert.Equal(t, circuit.Closed, b.State())
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", circuit.Closed.String())
	assert.Equal(t, "open", circuit.Open.String())
	assert.Equal(t, "half-open", circuit.HalfOpen.String())
}
