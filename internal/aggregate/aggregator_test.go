package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sortie/internal/core"
)

func result(seq int, phase string, attempted, success bool, kind core.ErrorKind) core.DispatchResult {
	return core.DispatchResult{
		Envelope:  &core.Envelope{Seq: seq, Source: "src", Phase: phase},
		Attempted: attempted,
		Success:   success,
		Kind:      kind,
		Latency:   time.Duration(seq+1) * time.Millisecond,
		BytesSent: 10,
	}
}

func TestAggregator_FoldCounts(t *testing.T) {
	clock := core.NewFakeClock(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	a := New(Options{Phases: []string{"Recon", "Exfil"}, Clock: clock})

	a.Fold(result(0, "Recon", true, true, core.KindNone))
	a.Fold(result(1, "Recon", true, false, core.KindRejected))
	a.Fold(result(2, "Exfil", true, false, core.KindUnknownSource))
	n := a.Fold(result(3, "Exfil", false, false, core.KindNotAttempted))
	assert.Equal(t, 4, n)

	clock.Advance(2 * time.Second)
	s := a.Snapshot()

	assert.Equal(t, Counters{
		Sent: 4, OK: 1, Failed: 2, NotAttempted: 1, BytesSent: 40,
		ByKind: map[core.ErrorKind]int{
			core.KindRejected:      1,
			core.KindUnknownSource: 1,
			core.KindNotAttempted:  1,
		},
	}, s.Overall)
	assert.Equal(t, s.Overall.Sent, s.Overall.OK+s.Overall.Failed+s.Overall.NotAttempted)
	assert.Equal(t, []string{"Recon", "Exfil"}, s.PhaseOrder)
	assert.Equal(t, 2, s.PerPhase["Recon"].Sent)
	assert.Equal(t, 1, s.PerPhase["Exfil"].NotAttempted)
	assert.Equal(t, "Exfil", s.LastPhase)
	assert.Equal(t, 2*time.Second, s.Elapsed)
	assert.InDelta(t, 1.5, s.Throughput, 1e-9)
	assert.Equal(t, time.Millisecond, s.Latency.Min)
	assert.Equal(t, 3*time.Millisecond, s.Latency.Max)
	assert.Nil(t, s.Events)
}

func TestAggregator_SnapshotIsACopy(t *testing.T) {
	a := New(Options{})
	a.Fold(result(0, "p", true, false, core.KindTransport))

	s := a.Snapshot()
	s.Overall.ByKind[core.KindTransport] = 99
	s.PerPhase["p"].ByKind[core.KindTransport] = 99

	again := a.Snapshot()
	assert.Equal(t, 1, again.Overall.ByKind[core.KindTransport])
	assert.Equal(t, 1, again.PerPhase["p"].ByKind[core.KindTransport])
}

func TestAggregator_Monotonic(t *testing.T) {
	a := New(Options{})
	prev := a.Snapshot().Overall
	for i := 0; i < 20; i++ {
		a.Fold(result(i, "p", i%3 != 0, i%2 == 0, core.KindNone))
		cur := a.Snapshot().Overall
		assert.GreaterOrEqual(t, cur.Sent, prev.Sent)
		assert.GreaterOrEqual(t, cur.OK, prev.OK)
		assert.GreaterOrEqual(t, cur.Failed, prev.Failed)
		assert.GreaterOrEqual(t, cur.NotAttempted, prev.NotAttempted)
		prev = cur
	}
}

func TestAggregator_KeepEventsSortedBySeq(t *testing.T) {
	a := New(Options{KeepEvents: true})
	for _, seq := range []int{3, 0, 2, 1} {
		a.Fold(result(seq, "p", true, true, core.KindNone))
	}

	events := a.Snapshot().Events
	require.Len(t, events, 4)
	for i, e := range events {
		assert.Equal(t, i, e.Seq)
		assert.Equal(t, "src", e.Source)
	}
}

func TestAggregator_ConcurrentFold(t *testing.T) {
	a := New(Options{})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				a.Fold(result(w*250+i, "p", true, i%5 != 0, core.KindNone))
			}
		}(w)
	}
	wg.Wait()

	s := a.Snapshot()
	assert.Equal(t, 2000, s.Overall.Sent)
	assert.Equal(t, 1600, s.Overall.OK)
	assert.Equal(t, 400, s.Overall.Failed)
}

func TestAggregator_CloseFreezesElapsed(t *testing.T) {
	clock := core.NewFakeClock(time.Unix(0, 0))
	a := New(Options{Clock: clock})
	clock.Advance(time.Second)
	a.Close()
	clock.Advance(time.Hour)
	a.Close()

	assert.Equal(t, time.Second, a.Snapshot().Elapsed)
}
