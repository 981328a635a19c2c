package core

import (
	"context"
	"testing"
	"time"
)

const t0 = int64(1_000_000) // fixed base timestamp in ms

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(Options{})
}

func mustPut(t *testing.T, e *Engine, sid string, pri, delay, ttr uint32, body string, nowMs int64) *Job {
	t.Helper()
	j, err := e.Put(sid, pri, delay, ttr, []byte(body), nowMs)
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	return j
}

func mustValidate(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Validate(); err != nil {
		t.Fatalf("invariants: %v", err)
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within 2s")
}

func sessionWaiting(e *Engine, sid string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.sessions[sid]
	return ok && s.State == SessionWaiting
}

func TestPutAssignsMonotonicIDs(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	j1 := mustPut(t, e, "p", 10, 0, 100, "a", t0)
	j2 := mustPut(t, e, "p", 10, 0, 100, "b", t0)
	if j1.ID != 1 || j2.ID != 2 {
		t.Fatalf("ids %d %d, want 1 2", j1.ID, j2.ID)
	}
	mustValidate(t, e)
}

func TestPriorityTieResolvesToLowerID(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	mustPut(t, e, "p", 10, 0, 100, "a", t0)
	mustPut(t, e, "p", 10, 0, 100, "b", t0)

	j, err := e.Reserve(context.Background(), "w", -1, t0)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if j.ID != 1 || string(j.Body) != "a" {
		t.Fatalf("got id=%d body=%q, want id=1 body=a", j.ID, j.Body)
	}
	if j.State != Reserved || j.Reserves != 1 {
		t.Fatalf("state=%s reserves=%d", j.State, j.Reserves)
	}
	mustValidate(t, e)
}

func TestReserveReturnsSamePutFields(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	mustPut(t, e, "p", 42, 0, 7, "payload", t0)
	j, err := e.Reserve(context.Background(), "w", -1, t0)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if string(j.Body) != "payload" || j.Priority != 42 || j.TTR != 7 {
		t.Fatalf("round-trip mismatch: %+v", j)
	}
}

func TestUrgentSelectionAcrossWatchedTubes(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	if _, err := e.Use("p", "alpha"); err != nil {
		t.Fatalf("use: %v", err)
	}
	mustPut(t, e, "p", 5, 0, 100, "in-alpha", t0)
	if _, err := e.Use("p", "beta"); err != nil {
		t.Fatalf("use: %v", err)
	}
	mustPut(t, e, "p", 1, 0, 100, "in-beta", t0)

	for _, name := range []string{"alpha", "beta"} {
		if _, err := e.Watch("w", name); err != nil {
			t.Fatalf("watch: %v", err)
		}
	}
	j, err := e.Reserve(context.Background(), "w", -1, t0)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if string(j.Body) != "in-beta" {
		t.Fatalf("expected the lower-priority-value head, got %q", j.Body)
	}
}

func TestDelayedJobBecomesReadyAfterSweep(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 1, 10, "x", t0)
	if j.State != Delayed {
		t.Fatalf("state=%s, want delayed", j.State)
	}
	// Nothing ready before the delay elapses.
	if _, err := e.Reserve(context.Background(), "w", 0, t0); err != ErrTimedOut {
		t.Fatalf("expected timed out before delay, got %v", err)
	}
	e.Tick(t0 + 1500)
	got, err := e.Reserve(context.Background(), "w", 0, t0+1500)
	if err != nil {
		t.Fatalf("reserve after delay: %v", err)
	}
	if got.ID != j.ID || got.State != Reserved {
		t.Fatalf("got %+v", got)
	}
	mustValidate(t, e)
}

func TestTTRExpiryTimesOutReservation(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 1, "y", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	e.Tick(t0 + 1100)
	st, err := e.StatsJob("p", j.ID, t0+1100)
	if err != nil {
		t.Fatalf("stats-job: %v", err)
	}
	if st.State != "ready" || st.Timeouts != 1 {
		t.Fatalf("state=%s timeouts=%d, want ready/1", st.State, st.Timeouts)
	}
	if g := e.Stats(t0 + 1100); g.JobTimeouts != 1 {
		t.Fatalf("job-timeouts=%d, want 1", g.JobTimeouts)
	}
	mustValidate(t, e)
}

func TestZeroTTRReservationNeverExpires(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 0, "z", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	e.Tick(t0 + 3_600_000)
	st, _ := e.StatsJob("p", j.ID, t0+3_600_000)
	if st.State != "reserved" || st.Timeouts != 0 {
		t.Fatalf("state=%s timeouts=%d, want reserved/0", st.State, st.Timeouts)
	}
}

func TestTouchExtendsDeadline(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 2, "t", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Touch("w", j.ID, t0+1500); err != nil {
		t.Fatalf("touch: %v", err)
	}
	e.Tick(t0 + 2100) // past the original deadline, inside the touched one
	st, _ := e.StatsJob("p", j.ID, t0+2100)
	if st.State != "reserved" {
		t.Fatalf("state=%s, want reserved after touch", st.State)
	}
}

func TestBuryKickRestoresReady(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 100, "z", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Bury("w", j.ID, 10); err != nil {
		t.Fatalf("bury: %v", err)
	}
	st, _ := e.StatsTube(DefaultTube, t0)
	if st.CurrentJobsBuried != 1 {
		t.Fatalf("buried=%d, want 1", st.CurrentJobsBuried)
	}
	n, err := e.Kick("p", 1, t0)
	if err != nil || n != 1 {
		t.Fatalf("kick=%d err=%v, want 1", n, err)
	}
	st, _ = e.StatsTube(DefaultTube, t0)
	if st.CurrentJobsBuried != 0 || st.CurrentJobsReady != 1 {
		t.Fatalf("buried=%d ready=%d, want 0/1", st.CurrentJobsBuried, st.CurrentJobsReady)
	}
	js, _ := e.StatsJob("p", j.ID, t0)
	if js.Priority != 10 || js.Kicks != 1 {
		t.Fatalf("pri=%d kicks=%d, want 10/1", js.Priority, js.Kicks)
	}
	mustValidate(t, e)
}

func TestKickPrefersBuriedOverDelayed(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	delayed := mustPut(t, e, "p", 5, 60, 100, "later", t0)
	buried := mustPut(t, e, "p", 5, 0, 100, "aside", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Bury("w", buried.ID, 5); err != nil {
		t.Fatalf("bury: %v", err)
	}

	n, err := e.Kick("p", 10, t0)
	if err != nil || n != 1 {
		t.Fatalf("kick=%d err=%v, want only the buried job", n, err)
	}
	st, _ := e.StatsJob("p", delayed.ID, t0)
	if st.State != "delayed" {
		t.Fatalf("delayed job was touched by a buried kick: %s", st.State)
	}
	// With the buried list empty a second kick reaches the delayed set.
	n, _ = e.Kick("p", 10, t0)
	if n != 1 {
		t.Fatalf("second kick=%d, want 1 delayed job", n)
	}
	st, _ = e.StatsJob("p", delayed.ID, t0)
	if st.State != "ready" {
		t.Fatalf("state=%s, want ready", st.State)
	}
}

func TestReleaseWithNewPriority(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 100, "r", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Release("w", j.ID, 99, 0, t0); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, err := e.Reserve(context.Background(), "w", -1, t0)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if got.ID != j.ID || got.Priority != 99 || got.Releases != 1 {
		t.Fatalf("id=%d pri=%d releases=%d, want %d/99/1", got.ID, got.Priority, got.Releases, j.ID)
	}
	mustValidate(t, e)
}

func TestReleaseWithDelayEntersDelaySet(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 100, "r", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Release("w", j.ID, 5, 30, t0); err != nil {
		t.Fatalf("release: %v", err)
	}
	st, _ := e.StatsJob("p", j.ID, t0)
	if st.State != "delayed" {
		t.Fatalf("state=%s, want delayed", st.State)
	}
	mustValidate(t, e)
}

func TestDeleteSemantics(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	e.OpenSession("intruder", Worker)

	delayed := mustPut(t, e, "p", 5, 60, 100, "d", t0)
	if err := e.Delete("p", delayed.ID); err != ErrNotFound {
		t.Fatalf("delete delayed: %v, want not found", err)
	}

	ready := mustPut(t, e, "p", 5, 0, 100, "r", t0)
	if err := e.Delete("p", ready.ID); err != nil {
		t.Fatalf("delete ready: %v", err)
	}

	reserved := mustPut(t, e, "p", 5, 0, 100, "x", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Delete("intruder", reserved.ID); err != ErrNotFound {
		t.Fatalf("delete by non-reserver: %v, want not found", err)
	}
	if err := e.Delete("w", reserved.ID); err != nil {
		t.Fatalf("delete by reserver: %v", err)
	}
	if err := e.Delete("w", reserved.ID); err != ErrNotFound {
		t.Fatalf("double delete: %v, want not found", err)
	}
	mustValidate(t, e)
}

func TestReleaseRequiresReserver(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	e.OpenSession("intruder", Worker)
	j := mustPut(t, e, "p", 5, 0, 100, "x", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Release("intruder", j.ID, 1, 0, t0); err != ErrNotFound {
		t.Fatalf("release by non-reserver: %v", err)
	}
	if err := e.Bury("intruder", j.ID, 1); err != ErrNotFound {
		t.Fatalf("bury by non-reserver: %v", err)
	}
	if err := e.Touch("intruder", j.ID, t0); err != ErrNotFound {
		t.Fatalf("touch by non-reserver: %v", err)
	}
}

func TestIgnoreLastWatchedTubeFails(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("w", Worker)
	if _, err := e.Ignore("w", DefaultTube); err != ErrNotIgnored {
		t.Fatalf("ignore last: %v, want not ignored", err)
	}
	watched, _ := e.ListTubesWatched("w")
	if len(watched) != 1 || watched[0] != DefaultTube {
		t.Fatalf("watch set changed: %v", watched)
	}
}

func TestReserveWithTimeoutZeroNeverBlocks(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("w", Worker)
	start := time.Now()
	_, err := e.Reserve(context.Background(), "w", 0, t0)
	if err != ErrTimedOut {
		t.Fatalf("expected timed out, got %v", err)
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatalf("reserve-with-timeout(0) blocked")
	}
}

func TestReserveTimeoutExpiresViaSweep(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("w", Worker)
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Reserve(context.Background(), "w", 1, t0)
		errCh <- err
	}()
	waitUntil(t, func() bool { return sessionWaiting(e, "w") })
	e.Tick(t0 + 1500)
	select {
	case err := <-errCh:
		if err != ErrTimedOut {
			t.Fatalf("expected timed out, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reserve did not resolve after timeout sweep")
	}
	mustValidate(t, e)
}

func TestDispatchWakesBlockedReserve(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	got := make(chan *Job, 1)
	go func() {
		j, err := e.Reserve(context.Background(), "w", -1, t0)
		if err == nil {
			got <- j
		}
	}()
	waitUntil(t, func() bool { return sessionWaiting(e, "w") })
	mustPut(t, e, "p", 5, 0, 100, "wake", t0)
	select {
	case j := <-got:
		if string(j.Body) != "wake" {
			t.Fatalf("body=%q", j.Body)
		}
	case <-time.After(time.Second):
		t.Fatalf("dispatch did not deliver to waiting session")
	}
	mustValidate(t, e)
}

func TestWaitingListFIFOAcrossSessions(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w1", Worker)
	e.OpenSession("w2", Worker)

	type res struct {
		sid string
		job *Job
	}
	got := make(chan res, 2)
	reserve := func(sid string) {
		j, err := e.Reserve(context.Background(), sid, -1, t0)
		if err == nil {
			got <- res{sid, j}
		}
	}
	go reserve("w1")
	waitUntil(t, func() bool { return sessionWaiting(e, "w1") })
	go reserve("w2")
	waitUntil(t, func() bool { return sessionWaiting(e, "w2") })

	mustPut(t, e, "p", 5, 0, 100, "first", t0)
	first := <-got
	if first.sid != "w1" || string(first.job.Body) != "first" {
		t.Fatalf("first dispatch went to %s (%q), want w1", first.sid, first.job.Body)
	}
	mustPut(t, e, "p", 5, 0, 100, "second", t0)
	second := <-got
	if second.sid != "w2" {
		t.Fatalf("second dispatch went to %s, want w2", second.sid)
	}
}

func TestPauseHoldsDispatchUntilExpiry(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	mustPut(t, e, "p", 1, 0, 100, "q", t0)
	if err := e.PauseTube(DefaultTube, 1, t0); err != nil {
		t.Fatalf("pause-tube: %v", err)
	}

	got := make(chan *Job, 1)
	go func() {
		j, err := e.Reserve(context.Background(), "w", -1, t0)
		if err == nil {
			got <- j
		}
	}()
	waitUntil(t, func() bool { return sessionWaiting(e, "w") })
	select {
	case <-got:
		t.Fatalf("reserve returned from a paused tube")
	case <-time.After(50 * time.Millisecond):
	}

	e.Tick(t0 + 1500)
	select {
	case j := <-got:
		if string(j.Body) != "q" {
			t.Fatalf("body=%q", j.Body)
		}
	case <-time.After(time.Second):
		t.Fatalf("pause expiry did not drain the waiting session")
	}
	mustValidate(t, e)
}

func TestPutIntoPausedTubeDoesNotDispatch(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	if err := e.PauseTube(DefaultTube, 60, t0); err != nil {
		t.Fatalf("pause-tube: %v", err)
	}
	got := make(chan *Job, 1)
	go func() {
		j, err := e.Reserve(context.Background(), "w", -1, t0)
		if err == nil {
			got <- j
		}
	}()
	waitUntil(t, func() bool { return sessionWaiting(e, "w") })
	mustPut(t, e, "p", 1, 0, 100, "held", t0)
	select {
	case <-got:
		t.Fatalf("paused tube dispatched on put")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDrainModeRejectsPut(t *testing.T) {
	e := New(Options{Drain: true})
	e.OpenSession("p", Producer)
	if _, err := e.Put("p", 1, 0, 1, []byte("x"), t0); err != ErrDraining {
		t.Fatalf("put in drain mode: %v, want draining", err)
	}
	e.SetDrain(false)
	if _, err := e.Put("p", 1, 0, 1, []byte("x"), t0); err != nil {
		t.Fatalf("put after drain off: %v", err)
	}
}

func TestCloseSessionReleasesReservedJobs(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	j := mustPut(t, e, "p", 5, 0, 100, "x", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	e.CloseSession("w", t0)
	st, err := e.StatsJob("p", j.ID, t0)
	if err != nil {
		t.Fatalf("stats-job: %v", err)
	}
	if st.State != "ready" {
		t.Fatalf("state=%s, want ready after session close", st.State)
	}
	mustValidate(t, e)
}

func TestCancelledContextAbortsReserve(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("w", Worker)
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := e.Reserve(ctx, "w", -1, t0)
		errCh <- err
	}()
	waitUntil(t, func() bool { return sessionWaiting(e, "w") })
	cancel()
	select {
	case err := <-errCh:
		if err != context.Canceled {
			t.Fatalf("err=%v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reserve did not observe cancellation")
	}
	mustValidate(t, e)
}

func TestPeekHeads(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	ready := mustPut(t, e, "p", 5, 0, 100, "r", t0)
	delayed := mustPut(t, e, "p", 5, 60, 100, "d", t0)
	toBury := mustPut(t, e, "p", 1, 0, 100, "b", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := e.Bury("w", toBury.ID, 1); err != nil {
		t.Fatalf("bury: %v", err)
	}

	j, err := e.PeekReady("p")
	if err != nil || j.ID != ready.ID {
		t.Fatalf("peek-ready: %v %v", j, err)
	}
	j, err = e.PeekDelayed("p")
	if err != nil || j.ID != delayed.ID {
		t.Fatalf("peek-delayed: %v %v", j, err)
	}
	j, err = e.PeekBuried("p")
	if err != nil || j.ID != toBury.ID {
		t.Fatalf("peek-buried: %v %v", j, err)
	}
	if _, err := e.Peek("p", 999); err != ErrNotFound {
		t.Fatalf("peek unknown: %v", err)
	}
}

func TestStatsCounters(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	mustPut(t, e, "p", 1, 0, 100, "a", t0)
	if _, err := e.Reserve(context.Background(), "w", -1, t0); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	st := e.Stats(t0)
	if st.CmdPut != 1 || st.CmdReserve != 1 {
		t.Fatalf("cmd-put=%d cmd-reserve=%d, want 1/1", st.CmdPut, st.CmdReserve)
	}
	if st.CurrentJobsReserved != 1 || st.TotalJobs != 1 {
		t.Fatalf("reserved=%d total=%d", st.CurrentJobsReserved, st.TotalJobs)
	}
	if st.CurrentConnections != 2 || st.CurrentProducers != 1 || st.CurrentWorkers != 1 {
		t.Fatalf("sessions: %d/%d/%d", st.CurrentConnections, st.CurrentProducers, st.CurrentWorkers)
	}
}

func TestTubesAreCreatedLazilyAndListed(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	e.OpenSession("w", Worker)
	if _, err := e.Use("p", "orders"); err != nil {
		t.Fatalf("use: %v", err)
	}
	if _, err := e.Watch("w", "mail"); err != nil {
		t.Fatalf("watch: %v", err)
	}
	tubes := e.ListTubes()
	want := []string{"default", "mail", "orders"}
	if len(tubes) != len(want) {
		t.Fatalf("tubes=%v", tubes)
	}
	for i := range want {
		if tubes[i] != want[i] {
			t.Fatalf("tubes=%v, want %v", tubes, want)
		}
	}
	used, _ := e.ListTubeUsed("p")
	if used != "orders" {
		t.Fatalf("used=%q", used)
	}
	mustValidate(t, e)
}

func TestUrgentCountTracksThreshold(t *testing.T) {
	e := newTestEngine(t)
	e.OpenSession("p", Producer)
	mustPut(t, e, "p", UrgentPriority-1, 0, 100, "urgent", t0)
	mustPut(t, e, "p", UrgentPriority, 0, 100, "normal", t0)
	st, _ := e.StatsTube(DefaultTube, t0)
	if st.CurrentJobsUrgent != 1 || st.CurrentJobsReady != 2 {
		t.Fatalf("urgent=%d ready=%d, want 1/2", st.CurrentJobsUrgent, st.CurrentJobsReady)
	}
}
