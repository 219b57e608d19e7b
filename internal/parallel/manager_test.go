package parallel

import (
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/transport"
)

func newManager(t *testing.T, opts ...Option) (*Manager, *transport.Memory, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	tr := transport.NewMemory(nil)
	opts = append([]Option{WithClock(clk)}, opts...)
	return NewManager(tr, opts...), tr, clk
}

func initProblem(t *testing.T, m *Manager, problemID string, threads int) []string {
	t.Helper()

	configs := make([]ThreadConfig, threads)
	for i := range configs {
		configs[i] = ThreadConfig{Topic: "subtopic", Participants: []string{"worker"}}
	}
	ids, err := m.InitializeParallelProcessing(problemID, "coordinator", configs)
	if err != nil {
		t.Fatalf("InitializeParallelProcessing() error = %v", err)
	}
	return ids
}

func readyCount(tr *transport.Memory, reconvener string) int {
	n := 0
	for _, d := range tr.DeliveriesTo(reconvener) {
		if d.EventType == "sync_point_ready" {
			n++
		}
	}
	return n
}

func TestInitializeParallelProcessing(t *testing.T) {
	m, _, _ := newManager(t)

	ids := initProblem(t, m, "problem-1", 3)
	if len(ids) != 3 {
		t.Fatalf("thread count = %d, want 3", len(ids))
	}
	for _, id := range ids {
		th, err := m.Thread(id)
		if err != nil {
			t.Fatalf("Thread(%q) error = %v", id, err)
		}
		if th.Status != ThreadActive {
			t.Errorf("Status = %v, want active", th.Status)
		}
	}

	if _, err := m.InitializeParallelProcessing("problem-1", "coordinator", []ThreadConfig{{}}); !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("duplicate init error = %v, want ErrInvalidRequest", err)
	}
}

func TestAddThreadContribution(t *testing.T) {
	m, _, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 1)

	if err := m.AddThreadContribution(ids[0], "worker", "first thought"); err != nil {
		t.Fatalf("AddThreadContribution() error = %v", err)
	}
	th, _ := m.Thread(ids[0])
	if len(th.Contributions) != 1 || th.Contributions[0].Content != "first thought" {
		t.Errorf("contributions = %+v, want one entry", th.Contributions)
	}

	if err := m.CompleteConversationThread(ids[0], true, "done"); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}
	if err := m.AddThreadContribution(ids[0], "worker", "too late"); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("contribution to terminal thread error = %v, want ErrInvalidState", err)
	}
}

func TestCompleteThreadStoresResult(t *testing.T) {
	m, _, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 1)

	if err := m.AddThreadContribution(ids[0], "worker", "finding"); err != nil {
		t.Fatalf("AddThreadContribution() error = %v", err)
	}
	if err := m.CompleteConversationThread(ids[0], false, "hit a wall"); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}

	th, _ := m.Thread(ids[0])
	if th.Status != ThreadFailed {
		t.Errorf("Status = %v, want failed", th.Status)
	}
	if th.Result == nil || th.Result.Success || th.Result.Summary != "hit a wall" {
		t.Errorf("Result = %+v, want failed result with summary", th.Result)
	}

	if err := m.CompleteConversationThread(ids[0], true, ""); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("re-complete error = %v, want ErrInvalidState", err)
	}
}

func TestAllCompleteFiresOnLastThread(t *testing.T) {
	m, tr, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 3)

	syncID, err := m.CreateSynchronizationPoint("problem-1", ids, AllComplete, "coordinator", 0)
	if err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}

	for i, id := range ids {
		if err := m.AddThreadContribution(id, "worker", "thought"); err != nil {
			t.Fatalf("AddThreadContribution() error = %v", err)
		}
		if err := m.CompleteConversationThread(id, true, "done"); err != nil {
			t.Fatalf("CompleteConversationThread() error = %v", err)
		}
		wantReady := 0
		if i == len(ids)-1 {
			wantReady = 1
		}
		if got := readyCount(tr, "coordinator"); got != wantReady {
			t.Errorf("after completion %d: ready notifications = %d, want %d", i+1, got, wantReady)
		}
	}

	contributions, err := m.ReconveneThreads(syncID, "bring it together")
	if err != nil {
		t.Fatalf("ReconveneThreads() error = %v", err)
	}
	if len(contributions) != 3 {
		t.Errorf("aggregated contributions = %d, want 3 (union of all threads)", len(contributions))
	}
}

func TestAllCompleteFiresExactlyOnceUnderRacingCompletions(t *testing.T) {
	m, tr, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 3)

	if _, err := m.CreateSynchronizationPoint("problem-1", ids, AllComplete, "coordinator", 0); err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(threadID string) {
			defer wg.Done()
			if err := m.CompleteConversationThread(threadID, true, "done"); err != nil {
				t.Errorf("CompleteConversationThread(%q) error = %v", threadID, err)
			}
		}(id)
	}
	wg.Wait()

	if got := readyCount(tr, "coordinator"); got != 1 {
		t.Errorf("ready notifications = %d, want exactly 1", got)
	}
}

func TestMajorityCompleteFiresOnThirdOfFive(t *testing.T) {
	m, tr, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 5)

	if _, err := m.CreateSynchronizationPoint("problem-1", ids, MajorityComplete, "coordinator", 0); err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := m.CompleteConversationThread(ids[i], true, ""); err != nil {
			t.Fatalf("CompleteConversationThread() error = %v", err)
		}
	}
	if got := readyCount(tr, "coordinator"); got != 0 {
		t.Fatalf("fired after 2 of 5 completions (2/5 is not a majority)")
	}

	if err := m.CompleteConversationThread(ids[2], true, ""); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}
	if got := readyCount(tr, "coordinator"); got != 1 {
		t.Errorf("ready notifications after 3 of 5 = %d, want 1", got)
	}
}

func TestTimeoutBasedFiresOnDeadline(t *testing.T) {
	m, tr, clk := newManager(t)
	ids := initProblem(t, m, "problem-1", 2)

	if _, err := m.CreateSynchronizationPoint("problem-1", ids, TimeoutBased, "coordinator", time.Minute); err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}
	m.evaluateTimeouts()
	if got := readyCount(tr, "coordinator"); got != 0 {
		t.Fatal("timeout barrier fired before its deadline")
	}

	clk.Add(2 * time.Minute)
	m.evaluateTimeouts()
	if got := readyCount(tr, "coordinator"); got != 1 {
		t.Errorf("ready notifications after deadline = %d, want 1", got)
	}

	// Later sweeps must not re-fire.
	m.evaluateTimeouts()
	if got := readyCount(tr, "coordinator"); got != 1 {
		t.Errorf("ready notifications after re-sweep = %d, want 1", got)
	}
}

func TestTimeoutBasedRequiresTimeout(t *testing.T) {
	m, _, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 1)

	_, err := m.CreateSynchronizationPoint("problem-1", ids, TimeoutBased, "coordinator", 0)
	if !errors.Is(err, errors.ErrInvalidRequest) {
		t.Errorf("CreateSynchronizationPoint() error = %v, want ErrInvalidRequest", err)
	}
}

func TestReconveneConsumedExactlyOnce(t *testing.T) {
	m, _, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 1)

	syncID, err := m.CreateSynchronizationPoint("problem-1", ids, AllComplete, "coordinator", 0)
	if err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}

	// Not yet fired.
	if _, err := m.ReconveneThreads(syncID, "early"); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("ReconveneThreads() before firing error = %v, want ErrInvalidState", err)
	}

	if err := m.CompleteConversationThread(ids[0], true, ""); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}
	if _, err := m.ReconveneThreads(syncID, "gather"); err != nil {
		t.Fatalf("ReconveneThreads() error = %v", err)
	}
	if _, err := m.ReconveneThreads(syncID, "again"); !errors.Is(err, errors.ErrInvalidState) {
		t.Errorf("second ReconveneThreads() error = %v, want ErrInvalidState", err)
	}

	th, _ := m.Thread(ids[0])
	if th.Status != ThreadMerged {
		t.Errorf("Status after reconvene = %v, want merged", th.Status)
	}
}

func TestLateBarrierFiresAtCreation(t *testing.T) {
	m, tr, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 1)

	if err := m.CompleteConversationThread(ids[0], true, ""); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}
	if _, err := m.CreateSynchronizationPoint("problem-1", ids, AllComplete, "coordinator", 0); err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}

	if got := readyCount(tr, "coordinator"); got != 1 {
		t.Errorf("ready notifications = %d, want 1 (already-complete threads)", got)
	}
}

func TestPreserveContext(t *testing.T) {
	m, tr, _ := newManager(t)
	ids, err := m.InitializeParallelProcessing("problem-1", "coordinator", []ThreadConfig{
		{Topic: "a", Participants: []string{"alice"}},
		{Topic: "b", Participants: []string{"bob"}},
	})
	if err != nil {
		t.Fatalf("InitializeParallelProcessing() error = %v", err)
	}
	if err := m.CompleteConversationThread(ids[1], true, ""); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}

	if err := m.PreserveContext("problem-1", "decision", "use the cache"); err != nil {
		t.Fatalf("PreserveContext() error = %v", err)
	}

	// Read-after-write within the problem.
	ctx, err := m.ProblemContext("problem-1")
	if err != nil {
		t.Fatalf("ProblemContext() error = %v", err)
	}
	if ctx["decision"] != "use the cache" {
		t.Errorf("context[decision] = %v, want the written value", ctx["decision"])
	}

	// Broadcast reaches active thread participants only.
	gotAlice := false
	for _, d := range tr.DeliveriesTo("alice") {
		if d.EventType == "context_preserved" {
			gotAlice = true
		}
	}
	if !gotAlice {
		t.Error("active thread participant missed the context broadcast")
	}
	for _, d := range tr.DeliveriesTo("bob") {
		if d.EventType == "context_preserved" {
			t.Error("terminal thread participant received the context broadcast")
		}
	}
}

func TestGCRemovesFinishedProblem(t *testing.T) {
	m, _, _ := newManager(t)
	ids := initProblem(t, m, "problem-1", 1)

	syncID, err := m.CreateSynchronizationPoint("problem-1", ids, AllComplete, "coordinator", 0)
	if err != nil {
		t.Fatalf("CreateSynchronizationPoint() error = %v", err)
	}
	if err := m.CompleteConversationThread(ids[0], true, ""); err != nil {
		t.Fatalf("CompleteConversationThread() error = %v", err)
	}
	if _, err := m.ReconveneThreads(syncID, "gather"); err != nil {
		t.Fatalf("ReconveneThreads() error = %v", err)
	}

	m.gc()
	if _, err := m.Thread(ids[0]); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Thread() after gc error = %v, want ErrNotFound", err)
	}
}

func TestGCRemovesOverAgeProblem(t *testing.T) {
	m, _, clk := newManager(t, WithProblemMaxAge(30*time.Minute))
	ids := initProblem(t, m, "problem-1", 1)

	m.gc()
	if _, err := m.Thread(ids[0]); err != nil {
		t.Fatalf("young problem collected early: %v", err)
	}

	clk.Add(31 * time.Minute)
	m.gc()
	if _, err := m.Thread(ids[0]); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Thread() after age ceiling error = %v, want ErrNotFound", err)
	}
}
