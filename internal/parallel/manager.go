// Package parallel fans a problem out into independent conversation
// threads and fans results back in through one-shot synchronization
// points. The Manager depends only on the notification transport;
// thread participants speak through whatever floor discipline their
// conversation uses.
package parallel

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/palaver-dev/palaver/internal/errors"
	"github.com/palaver-dev/palaver/internal/event"
	"github.com/palaver-dev/palaver/internal/logging"
	"github.com/palaver-dev/palaver/internal/transport"
)

const transportSender = "barrier"

const (
	defaultProblemMaxAge = time.Hour
	defaultGCInterval    = time.Minute
)

// problem groups the threads, sync points, and shared context created
// for one problem id. All of it is guarded by the Manager mutex, so
// completion and evaluation are atomic per problem.
type problem struct {
	id          string
	coordinator string
	threads     map[string]*Thread
	syncs       map[string]*SyncPoint
	context     map[string]any
	createdAt   time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithProblemMaxAge sets the age at which a problem is collected even
// with unfinished threads.
func WithProblemMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// WithGCInterval sets how often collection and timeout evaluation run.
func WithGCInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.gcInterval = d
		}
	}
}

// WithClock substitutes the clock, for tests.
func WithClock(clk clock.Clock) Option {
	return func(m *Manager) {
		if clk != nil {
			m.clk = clk
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithBus sets the event bus thread and barrier events are published on.
func WithBus(bus *event.Bus) Option {
	return func(m *Manager) {
		m.bus = bus
	}
}

// Manager owns all parallel-processing state behind a single mutex.
type Manager struct {
	mu       sync.Mutex
	problems map[string]*problem
	byThread map[string]string
	bySync   map[string]string

	tr  transport.Transport
	bus *event.Bus

	maxAge     time.Duration
	gcInterval time.Duration

	clk    clock.Clock
	logger *logging.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewManager creates a Manager sending notifications through the given
// transport.
func NewManager(tr transport.Transport, opts ...Option) *Manager {
	m := &Manager{
		problems:   make(map[string]*problem),
		byThread:   make(map[string]string),
		bySync:     make(map[string]string),
		tr:         tr,
		maxAge:     defaultProblemMaxAge,
		gcInterval: defaultGCInterval,
		clk:        clock.New(),
		logger:     logging.NopLogger(),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the periodic timeout evaluation and garbage
// collection loop.
func (m *Manager) Start() {
	m.startOnce.Do(func() {
		m.started = true
		go m.run()
	})
}

// Stop halts the loop. Safe to call more than once, and a no-op if the
// loop was never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	if m.started {
		<-m.doneCh
	}
}

func (m *Manager) run() {
	defer close(m.doneCh)

	ticker := m.clk.Ticker(m.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evaluateTimeouts()
			m.gc()
		case <-m.stopCh:
			return
		}
	}
}

// InitializeParallelProcessing creates a problem and one thread per
// config, returning the thread ids in config order. No floor is
// acquired; threads run independently until a barrier gathers them.
func (m *Manager) InitializeParallelProcessing(problemID, coordinator string, configs []ThreadConfig) ([]string, error) {
	if problemID == "" {
		return nil, errors.NewValidationError("problem id", "must not be empty")
	}
	if len(configs) == 0 {
		return nil, errors.NewValidationError("thread configs", "must not be empty")
	}

	m.mu.Lock()
	if _, exists := m.problems[problemID]; exists {
		m.mu.Unlock()
		return nil, errors.NewValidationError("problem id", "already initialized")
	}
	now := m.clk.Now()
	p := &problem{
		id:          problemID,
		coordinator: coordinator,
		threads:     make(map[string]*Thread, len(configs)),
		syncs:       make(map[string]*SyncPoint),
		context:     make(map[string]any),
		createdAt:   now,
	}
	ids := make([]string, 0, len(configs))
	for _, cfg := range configs {
		th := m.newThreadLocked(p, cfg, now)
		ids = append(ids, th.ID)
	}
	m.problems[problemID] = p
	m.mu.Unlock()

	m.logger.Info("parallel processing initialized",
		"problem_id", problemID, "coordinator", coordinator, "threads", len(ids))
	return ids, nil
}

// StartConversationThread adds a thread to an existing problem and
// tells its participants.
func (m *Manager) StartConversationThread(problemID, topic string, participants []string) (string, error) {
	m.mu.Lock()
	p, ok := m.problems[problemID]
	if !ok {
		m.mu.Unlock()
		return "", errors.NewNotFoundError("problem", problemID)
	}
	th := m.newThreadLocked(p, ThreadConfig{Topic: topic, Participants: participants}, m.clk.Now())
	m.mu.Unlock()

	m.send("thread_started", map[string]any{
		"thread_id":  th.ID,
		"problem_id": problemID,
		"topic":      topic,
	}, th.Participants...)
	return th.ID, nil
}

func (m *Manager) newThreadLocked(p *problem, cfg ThreadConfig, now time.Time) *Thread {
	th := &Thread{
		ID:           uuid.NewString(),
		ProblemID:    p.id,
		Topic:        cfg.Topic,
		Participants: append([]string(nil), cfg.Participants...),
		Coordinator:  p.coordinator,
		Status:       ThreadActive,
		CreatedAt:    now,
	}
	p.threads[th.ID] = th
	m.byThread[th.ID] = p.id
	return th
}

// AddThreadContribution appends a message to an active thread.
func (m *Manager) AddThreadContribution(threadID, participantID, content string) error {
	if participantID == "" {
		return errors.NewValidationError("participant id", "must not be empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	th, err := m.threadLocked(threadID)
	if err != nil {
		return err
	}
	if th.Status != ThreadActive {
		return errors.NewStateError("thread", th.Status.String(), "contribute")
	}
	th.Contributions = append(th.Contributions, Contribution{
		ThreadID:      threadID,
		ParticipantID: participantID,
		Content:       content,
		At:            m.clk.Now(),
	})
	return nil
}

// CompleteConversationThread marks the thread terminal, records its
// result, and evaluates every sync point of the parent problem. Racing
// completions are serialized by the manager mutex, so each barrier
// fires at most once.
func (m *Manager) CompleteConversationThread(threadID string, success bool, summary string) error {
	var fired []firedSync
	m.mu.Lock()
	th, err := m.threadLocked(threadID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if th.Status != ThreadActive {
		m.mu.Unlock()
		return errors.NewStateError("thread", th.Status.String(), "complete")
	}
	if success {
		th.Status = ThreadCompleted
	} else {
		th.Status = ThreadFailed
	}
	th.CompletedAt = m.clk.Now()
	th.Result = &ThreadResult{
		ThreadID:      threadID,
		Success:       success,
		Summary:       summary,
		Contributions: append([]Contribution(nil), th.Contributions...),
	}

	p := m.problems[th.ProblemID]
	problemID := th.ProblemID
	for _, sp := range p.syncs {
		if m.evaluateLocked(p, sp) {
			fired = append(fired, snapshotFired(sp))
		}
	}
	m.mu.Unlock()

	m.publish(event.NewThreadCompletedEvent(threadID, problemID, success))
	for _, fs := range fired {
		m.announceFired(fs)
	}
	return nil
}

// CreateSynchronizationPoint defines a one-shot barrier across the
// given threads. Policies over already-finished threads are evaluated
// immediately, so a late barrier can fire at creation.
func (m *Manager) CreateSynchronizationPoint(problemID string, required []string, policy Policy, reconvener string, timeout time.Duration) (string, error) {
	if len(required) == 0 {
		return "", errors.NewValidationError("required threads", "must not be empty")
	}
	if reconvener == "" {
		return "", errors.NewValidationError("reconvener", "must not be empty")
	}
	if policy == TimeoutBased && timeout <= 0 {
		return "", errors.NewValidationError("timeout", "required for a timeout policy")
	}

	var firedNow *firedSync
	m.mu.Lock()
	p, ok := m.problems[problemID]
	if !ok {
		m.mu.Unlock()
		return "", errors.NewNotFoundError("problem", problemID)
	}
	for _, threadID := range required {
		if _, ok := p.threads[threadID]; !ok {
			m.mu.Unlock()
			return "", errors.NewNotFoundError("thread", threadID)
		}
	}
	sp := &SyncPoint{
		ID:         uuid.NewString(),
		ProblemID:  problemID,
		Required:   append([]string(nil), required...),
		Policy:     policy,
		Reconvener: reconvener,
		CreatedAt:  m.clk.Now(),
	}
	if timeout > 0 {
		sp.Deadline = sp.CreatedAt.Add(timeout)
	}
	p.syncs[sp.ID] = sp
	m.bySync[sp.ID] = problemID
	if m.evaluateLocked(p, sp) {
		fs := snapshotFired(sp)
		firedNow = &fs
	}
	m.mu.Unlock()

	if firedNow != nil {
		m.announceFired(*firedNow)
	}
	return sp.ID, nil
}

// ReconveneThreads consumes a fired barrier: the reconvene message is
// sent to every participant of the required threads, completed threads
// are folded in as Merged, and the aggregated contributions are
// returned in thread order. A barrier is consumed exactly once.
func (m *Manager) ReconveneThreads(syncID, message string) ([]Contribution, error) {
	m.mu.Lock()
	problemID, ok := m.bySync[syncID]
	if !ok {
		m.mu.Unlock()
		return nil, errors.NewNotFoundError("sync point", syncID)
	}
	p := m.problems[problemID]
	sp := p.syncs[syncID]
	if sp.Consumed {
		m.mu.Unlock()
		return nil, errors.NewStateError("sync point", "consumed", "reconvene")
	}
	if !sp.Fired {
		m.mu.Unlock()
		return nil, errors.NewStateError("sync point", "waiting", "reconvene")
	}
	sp.Consumed = true

	var aggregated []Contribution
	recipients := make(map[string]bool)
	for _, threadID := range sp.Required {
		th := p.threads[threadID]
		aggregated = append(aggregated, th.Contributions...)
		for _, id := range th.Participants {
			recipients[id] = true
		}
		if th.Status == ThreadCompleted {
			th.Status = ThreadMerged
		}
	}
	m.mu.Unlock()

	ids := make([]string, 0, len(recipients))
	for id := range recipients {
		ids = append(ids, id)
	}
	m.send("threads_reconvened", map[string]any{
		"sync_id": syncID,
		"message": message,
	}, ids...)
	return aggregated, nil
}

// PreserveContext writes into the problem's shared map and broadcasts
// the key to participants of active threads. Reads within the same
// problem see the write immediately; broadcast ordering across
// problems is not guaranteed.
func (m *Manager) PreserveContext(problemID, key string, value any) error {
	if key == "" {
		return errors.NewValidationError("key", "must not be empty")
	}

	m.mu.Lock()
	p, ok := m.problems[problemID]
	if !ok {
		m.mu.Unlock()
		return errors.NewNotFoundError("problem", problemID)
	}
	p.context[key] = value
	recipients := make(map[string]bool)
	for _, th := range p.threads {
		if th.Status != ThreadActive {
			continue
		}
		for _, id := range th.Participants {
			recipients[id] = true
		}
	}
	m.mu.Unlock()

	m.publish(event.NewContextPreservedEvent(problemID, key))
	if len(recipients) > 0 {
		ids := make([]string, 0, len(recipients))
		for id := range recipients {
			ids = append(ids, id)
		}
		m.send("context_preserved", map[string]any{
			"problem_id": problemID,
			"key":        key,
			"value":      value,
		}, ids...)
	}
	return nil
}

// ProblemContext returns a copy of the problem's shared map.
func (m *Manager) ProblemContext(problemID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.problems[problemID]
	if !ok {
		return nil, errors.NewNotFoundError("problem", problemID)
	}
	out := make(map[string]any, len(p.context))
	for k, v := range p.context {
		out[k] = v
	}
	return out, nil
}

// Thread returns a copy of the thread.
func (m *Manager) Thread(threadID string) (Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	th, err := m.threadLocked(threadID)
	if err != nil {
		return Thread{}, err
	}
	cp := *th
	cp.Participants = append([]string(nil), th.Participants...)
	cp.Contributions = append([]Contribution(nil), th.Contributions...)
	if th.Result != nil {
		r := *th.Result
		r.Contributions = append([]Contribution(nil), th.Result.Contributions...)
		cp.Result = &r
	}
	return cp, nil
}

// SyncPointState returns a copy of the sync point.
func (m *Manager) SyncPointState(syncID string) (SyncPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	problemID, ok := m.bySync[syncID]
	if !ok {
		return SyncPoint{}, errors.NewNotFoundError("sync point", syncID)
	}
	sp := m.problems[problemID].syncs[syncID]
	cp := *sp
	cp.Required = append([]string(nil), sp.Required...)
	cp.Completed = append([]string(nil), sp.Completed...)
	return cp, nil
}

func (m *Manager) threadLocked(threadID string) (*Thread, error) {
	problemID, ok := m.byThread[threadID]
	if !ok {
		return nil, errors.NewNotFoundError("thread", threadID)
	}
	return m.problems[problemID].threads[threadID], nil
}

// evaluateLocked recomputes the completed set and fires the barrier if
// its policy is satisfied. A fired or consumed barrier never fires
// again; that is the exactly-once guarantee.
func (m *Manager) evaluateLocked(p *problem, sp *SyncPoint) bool {
	if sp.Fired {
		return false
	}

	sp.Completed = sp.Completed[:0]
	for _, threadID := range sp.Required {
		if p.threads[threadID].Status.Terminal() {
			sp.Completed = append(sp.Completed, threadID)
		}
	}

	satisfied := false
	switch sp.Policy {
	case AllComplete:
		satisfied = len(sp.Completed) == len(sp.Required)
	case MajorityComplete:
		satisfied = float64(len(sp.Completed))/float64(len(sp.Required)) > 0.5
	case TimeoutBased:
		satisfied = !m.clk.Now().Before(sp.Deadline)
	}
	if satisfied {
		sp.Fired = true
	}
	return satisfied
}

// firedSync is a snapshot taken under the lock so the announcement can
// run outside it.
type firedSync struct {
	id         string
	problemID  string
	policy     string
	reconvener string
	completed  int
	required   int
}

func snapshotFired(sp *SyncPoint) firedSync {
	return firedSync{
		id:         sp.ID,
		problemID:  sp.ProblemID,
		policy:     sp.Policy.String(),
		reconvener: sp.Reconvener,
		completed:  len(sp.Completed),
		required:   len(sp.Required),
	}
}

func (m *Manager) announceFired(fs firedSync) {
	m.logger.Info("sync point fired",
		"sync_id", fs.id, "problem_id", fs.problemID, "policy", fs.policy)
	m.publish(event.NewSyncPointFiredEvent(fs.id, fs.problemID, fs.policy, fs.completed, fs.required))
	m.send("sync_point_ready", map[string]any{
		"sync_id":    fs.id,
		"problem_id": fs.problemID,
	}, fs.reconvener)
}

// evaluateTimeouts fires TimeoutBased barriers whose deadline passed.
func (m *Manager) evaluateTimeouts() {
	var fired []firedSync
	m.mu.Lock()
	for _, p := range m.problems {
		for _, sp := range p.syncs {
			if sp.Policy == TimeoutBased && m.evaluateLocked(p, sp) {
				fired = append(fired, snapshotFired(sp))
			}
		}
	}
	m.mu.Unlock()

	for _, fs := range fired {
		m.announceFired(fs)
	}
}

// gc removes finished and over-age problems. A problem is finished
// when every thread is terminal and every sync point consumed; an
// over-age problem goes regardless, bounding memory.
func (m *Manager) gc() {
	now := m.clk.Now()

	m.mu.Lock()
	for id, p := range m.problems {
		if m.finishedLocked(p) || now.Sub(p.createdAt) > m.maxAge {
			for threadID := range p.threads {
				delete(m.byThread, threadID)
			}
			for syncID := range p.syncs {
				delete(m.bySync, syncID)
			}
			delete(m.problems, id)
			m.logger.Debug("problem collected", "problem_id", id)
		}
	}
	m.mu.Unlock()
}

func (m *Manager) finishedLocked(p *problem) bool {
	for _, th := range p.threads {
		if !th.Status.Terminal() {
			return false
		}
	}
	for _, sp := range p.syncs {
		if !sp.Consumed {
			return false
		}
	}
	return true
}

func (m *Manager) publish(e event.Event) {
	if m.bus != nil {
		m.bus.Publish(e)
	}
}

func (m *Manager) send(eventType string, payload map[string]any, recipients ...string) {
	if m.tr == nil || len(recipients) == 0 {
		return
	}
	if err := m.tr.Send(context.Background(), eventType, payload, transportSender, recipients); err != nil {
		m.logger.Warn("notification send failed", "event_type", eventType, "error", err)
	}
}
