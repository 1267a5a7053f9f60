package execution

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/betbot/jitbot/internal/domain"
)

func TestRegistry_ConcurrentAcquireSingleWinner(t *testing.T) {
	r := NewRegistry(0, 8)
	sig := domain.NewOrderSignature("taker", 1)

	var wins atomic.Int32
	var dups atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.TryAcquire(NewTask(sig, perp0, "t"))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrDuplicateInFlight):
				dups.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(63), dups.Load())
	assert.True(t, r.InFlight(sig))
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_ReleaseWithoutRetentionAllowsReacquire(t *testing.T) {
	r := NewRegistry(0, 0)
	sig := domain.NewOrderSignature("taker", 2)

	require.NoError(t, r.TryAcquire(NewTask(sig, perp0, "t")))
	r.Release(sig)
	r.Release(sig)

	assert.False(t, r.InFlight(sig))
	assert.NoError(t, r.Check(sig))
	assert.NoError(t, r.TryAcquire(NewTask(sig, perp0, "t")))
}

func TestRegistry_SeenRetentionRejectsUntilExpiry(t *testing.T) {
	r := NewRegistry(30*time.Millisecond, 4)
	sig := domain.NewOrderSignature("taker", 3)

	require.NoError(t, r.TryAcquire(NewTask(sig, perp0, "t")))
	r.Release(sig)

	assert.ErrorIs(t, r.Check(sig), ErrAlreadySeen)
	assert.ErrorIs(t, r.TryAcquire(NewTask(sig, perp0, "t")), ErrAlreadySeen)

	time.Sleep(40 * time.Millisecond)
	assert.NoError(t, r.TryAcquire(NewTask(sig, perp0, "t")))
}

func TestRegistry_TasksSnapshot(t *testing.T) {
	r := NewRegistry(0, 4)
	for i := uint64(0); i < 5; i++ {
		require.NoError(t, r.TryAcquire(NewTask(domain.NewOrderSignature(fmt.Sprintf("k%d", i), i), perp0, "t")))
	}
	assert.Len(t, r.Tasks(), 5)

	task := r.Tasks()[0]
	assert.Equal(t, TaskPredict, task.State())
	task.SetState(TaskWait)
	assert.Equal(t, TaskWait, task.State())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorClass
	}{
		{nil, ClassNone},
		{&domain.ProgramError{Code: domain.ErrBidNotCrossed}, ClassNotCrossed},
		{fmt.Errorf("wrap: %w", &domain.ProgramError{Code: domain.ErrAskNotCrossed}), ClassNotCrossed},
		{&domain.ProgramError{Code: domain.ErrInvalidOracle}, ClassStaleOracle},
		{&domain.ProgramError{Code: domain.ErrNoFill}, ClassUnfillable},
		{&domain.ProgramError{Code: 0x1799}, ClassUnclassified},
		{errors.New("Program log: Error Code: custom program error: 0x1772"), ClassUnfillable},
		{errors.New("custom program error: 0x177A"), ClassUnfillable},
		{errors.New("custom program error: 0x1778"), ClassUnfillable},
		{errors.New("custom program error: 0x1773"), ClassUnfillable},
		{errors.New("custom program error: 0x1793"), ClassStaleOracle},
		{errors.New("connection reset by peer"), ClassUnclassified},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.err), "err=%v", c.err)
	}
	assert.True(t, ClassNotCrossed.Retryable())
	assert.True(t, ClassStaleOracle.Retryable())
	assert.False(t, ClassUnfillable.Retryable())
	assert.False(t, ClassUnclassified.Retryable())
}
