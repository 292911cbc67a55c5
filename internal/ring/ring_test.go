package ring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/henryshunt/psn-node-go/internal/observation"
)

func obsAt(sec int64) observation.Observation {
	return observation.Observation{Time: time.Unix(sec, 0).UTC()}
}

func TestEmptyRing(t *testing.T) {
	r := New(5)
	require.True(t, r.IsEmpty())
	require.False(t, r.IsFull())
	require.Equal(t, 0, r.Len())
	_, ok := r.PeekOldest()
	require.False(t, ok)
	_, ok = r.PopOldest()
	require.False(t, ok)
}

// S5 — overflow is lossy oldest: capacity=5, push O1..O6, ring holds {O2..O6}.
func TestOverflowDropsOldest(t *testing.T) {
	r := New(5)
	for i := int64(1); i <= 6; i++ {
		r.Push(obsAt(i))
	}
	require.True(t, r.IsFull())
	require.Equal(t, 5, r.Len())

	snap := r.Snapshot()
	require.Len(t, snap, 5)
	for i, obs := range snap {
		require.Equal(t, int64(i+2), obs.Time.Unix())
	}
}

func TestPeekDoesNotMutate(t *testing.T) {
	r := New(3)
	r.Push(obsAt(1))
	r.Push(obsAt(2))

	first, ok := r.PeekOldest()
	require.True(t, ok)
	require.Equal(t, int64(1), first.Time.Unix())

	second, ok := r.PeekOldest()
	require.True(t, ok)
	require.Equal(t, first.Time, second.Time)
	require.Equal(t, 2, r.Len())
}

func TestPopOrderMatchesPushOrder(t *testing.T) {
	r := New(4)
	for i := int64(1); i <= 4; i++ {
		r.Push(obsAt(i))
	}

	for i := int64(1); i <= 4; i++ {
		obs, ok := r.PopOldest()
		require.True(t, ok)
		require.Equal(t, i, obs.Time.Unix())
	}
	require.True(t, r.IsEmpty())
}

// Property: after any sequence of pushes/pops, len == min(pushes-pops, capacity).
func TestLenInvariantUnderRandomOps(t *testing.T) {
	const capacity = 7
	r := New(capacity)
	pushes, pops := 0, 0
	seq := []string{"push", "push", "push", "pop", "push", "push", "push", "push",
		"push", "push", "pop", "pop", "push", "pop", "pop", "pop", "pop", "pop"}

	var nextTime int64
	for _, op := range seq {
		switch op {
		case "push":
			nextTime++
			r.Push(obsAt(nextTime))
			pushes++
		case "pop":
			_, ok := r.PopOldest()
			if ok {
				pops++
			}
		}
		want := pushes - pops
		if want > capacity {
			want = capacity
		}
		require.Equal(t, want, r.Len())
	}
}

func BenchmarkPushPop(b *testing.B) {
	r := New(205)
	obs := obsAt(1)
	for i := 0; i < b.N; i++ {
		r.Push(obs)
		if r.IsFull() {
			r.PopOldest()
		}
	}
}
