package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Voyage-Tech-Solutions/EduSMS-sub000/internal/domain"
)

type fakeConns struct {
	mu           sync.Mutex
	stale        []uuid.UUID
	deregistered []uuid.UUID
	probes       []domain.Envelope
	probeIdle    []time.Duration
}

func (f *fakeConns) ProbeAll(env domain.Envelope) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes = append(f.probes, env)
	return 3
}

func (f *fakeConns) StaleHandles(maxIdle time.Duration) []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeIdle = append(f.probeIdle, maxIdle)
	return f.stale
}

func (f *fakeConns) Deregister(handle uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deregistered = append(f.deregistered, handle)
}

func (f *fakeConns) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.probes)
}

type fakePresence struct {
	mu       sync.Mutex
	refreshs int
}

func (f *fakePresence) Refresh(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshs++
}

func (f *fakePresence) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshs
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestSweep_ProbesAndRefreshes(t *testing.T) {
	conns := &fakeConns{}
	pres := &fakePresence{}
	monitor := NewMonitor(conns, pres, clockwork.NewFakeClock(), 30*time.Second)

	monitor.Sweep(context.Background())

	require.Len(t, conns.probes, 1)
	assert.Equal(t, domain.TypePing, conns.probes[0].Type)
	assert.Equal(t, 1, pres.count())
	assert.Empty(t, conns.deregistered)
}

func TestSweep_EvictsAfterTwoSilentIntervals(t *testing.T) {
	dead1, dead2 := uuid.New(), uuid.New()
	conns := &fakeConns{stale: []uuid.UUID{dead1, dead2}}
	monitor := NewMonitor(conns, &fakePresence{}, clockwork.NewFakeClock(), 30*time.Second)

	monitor.Sweep(context.Background())

	assert.ElementsMatch(t, []uuid.UUID{dead1, dead2}, conns.deregistered)
	require.Len(t, conns.probeIdle, 1)
	assert.Equal(t, 60*time.Second, conns.probeIdle[0], "idle cutoff is twice the probe interval")
}

func TestNewMonitor_DefaultInterval(t *testing.T) {
	monitor := NewMonitor(&fakeConns{}, &fakePresence{}, clockwork.NewFakeClock(), 0)
	assert.Equal(t, DefaultInterval, monitor.Interval())
}

func TestRun_SweepsEveryInterval(t *testing.T) {
	conns := &fakeConns{}
	pres := &fakePresence{}
	clock := clockwork.NewFakeClock()
	monitor := NewMonitor(conns, pres, clock, 30*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		monitor.Run(ctx)
	}()

	// Wait for the ticker to be registered before advancing.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))

	clock.Advance(30 * time.Second)
	waitFor(t, time.Second, func() bool { return conns.probeCount() == 1 })

	clock.Advance(30 * time.Second)
	waitFor(t, time.Second, func() bool { return conns.probeCount() == 2 })
	waitFor(t, time.Second, func() bool { return pres.count() == 2 })

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
}
