// Package review holds the human review queue: priority-ordered intake of
// escalated content with per-priority SLA deadlines.
package review

import (
	"container/heap"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentra/moderation/internal/domain"
	"github.com/sentra/moderation/internal/metrics"
)

// Stats is a point-in-time snapshot of queue health.
type Stats struct {
	Depth           int                           `json:"depth"`
	DepthByPriority map[domain.ReviewPriority]int `json:"depth_by_priority"`
	BreachedSLAs    int                           `json:"breached_slas"`
	OldestWait      time.Duration                 `json:"oldest_wait"`
}

// taskHeap orders tasks by priority descending, then enqueue order ascending.
type taskHeap []*queuedTask

type queuedTask struct {
	task     *domain.ReviewTask
	seq      uint64
	idx      int
	breached bool // breach already counted
}

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].task.Priority != h[j].task.Priority {
		return h[i].task.Priority > h[j].task.Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].idx = i
	h[j].idx = j
}

func (h *taskHeap) Push(x interface{}) {
	qt := x.(*queuedTask)
	qt.idx = len(*h)
	*h = append(*h, qt)
}

func (h *taskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	qt := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return qt
}

// Queue is the in-memory review queue. Optionally mirrored to a Store for
// durability; store failures never block intake.
type Queue struct {
	mu    sync.Mutex
	heap  taskHeap
	byID  map[uuid.UUID]*queuedTask
	seq   uint64
	store Store

	metrics *metrics.Metrics // optional
	logger  *log.Logger
	now     func() time.Time
}

// Store persists queue mutations, typically to Redis.
type Store interface {
	SaveTask(task *domain.ReviewTask) error
	RemoveTask(id uuid.UUID) error
}

// NewQueue creates an empty review queue. store may be nil.
func NewQueue(store Store) *Queue {
	return &Queue{
		byID:   make(map[uuid.UUID]*queuedTask),
		store:  store,
		logger: log.New(log.Writer(), "[REVIEW] ", log.LstdFlags),
		now:    time.Now,
	}
}

// SetClock overrides the time source used for SLA accounting.
func (q *Queue) SetClock(now func() time.Time) { q.now = now }

// WithMetrics attaches Prometheus instrumentation.
func (q *Queue) WithMetrics(m *metrics.Metrics) *Queue { q.metrics = m; return q }

// Enqueue admits a task. Re-enqueueing an existing task id is a no-op.
func (q *Queue) Enqueue(task *domain.ReviewTask) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.byID[task.ID]; ok {
		return
	}

	q.seq++
	qt := &queuedTask{task: task, seq: q.seq}
	heap.Push(&q.heap, qt)
	q.byID[task.ID] = qt

	if q.store != nil {
		if err := q.store.SaveTask(task); err != nil {
			q.logger.Printf("store save failed for task %s: %v", task.ID, err)
		}
	}
}

// Dequeue hands out the most urgent task, FIFO within a priority.
// Returns nil when the queue is empty.
func (q *Queue) Dequeue() *domain.ReviewTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return nil
	}
	qt := heap.Pop(&q.heap).(*queuedTask)
	delete(q.byID, qt.task.ID)

	if q.store != nil {
		if err := q.store.RemoveTask(qt.task.ID); err != nil {
			q.logger.Printf("store remove failed for task %s: %v", qt.task.ID, err)
		}
	}
	return qt.task
}

// Peek returns the most urgent task without removing it.
func (q *Queue) Peek() *domain.ReviewTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.heap.Len() == 0 {
		return nil
	}
	return q.heap[0].task
}

// Len returns the queue depth.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Stats scans the queue for depth, per-priority depth, SLA breaches, and
// the longest current wait. O(n); the queue should stay small enough that
// this is fine to call on every stats request.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	st := Stats{
		Depth:           q.heap.Len(),
		DepthByPriority: make(map[domain.ReviewPriority]int),
	}
	for _, qt := range q.heap {
		st.DepthByPriority[qt.task.Priority]++
		if qt.task.SLABreached(now) {
			st.BreachedSLAs++
			q.noteBreach(qt)
		}
		if wait := now.Sub(qt.task.CreatedAt); wait > st.OldestWait {
			st.OldestWait = wait
		}
	}
	return st
}

// BreachedTasks returns the tasks whose SLA deadline has passed, most
// urgent first.
func (q *Queue) BreachedTasks() []*domain.ReviewTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var out []*domain.ReviewTask
	for _, qt := range q.heap {
		if qt.task.SLABreached(now) {
			out = append(out, qt.task)
			q.noteBreach(qt)
		}
	}
	return out
}

// noteBreach counts a task's first observed breach. Caller holds q.mu.
func (q *Queue) noteBreach(qt *queuedTask) {
	if qt.breached {
		return
	}
	qt.breached = true
	if q.metrics != nil {
		q.metrics.RecordSLABreach()
	}
}

// BuildTask constructs a review task from an escalated moderation outcome.
// The SLA deadline follows the priority table.
func BuildTask(content *domain.Content, result *domain.ModerationResult, reason string, now time.Time) *domain.ReviewTask {
	priority := domain.PriorityForSeverity(result.Severity)
	wait := time.Duration(domain.SLAWaitMinutes[priority]) * time.Minute

	mlConfidence := 0.0
	if result.MLScores != nil {
		mlConfidence = result.MLScores.Confidence
	}

	var imageURLs []string
	if content.ImageURL != "" {
		imageURLs = append(imageURLs, content.ImageURL)
	}
	imageURLs = append(imageURLs, content.MediaURLs...)

	return &domain.ReviewTask{
		ID:                 uuid.New(),
		ContentID:          content.ID,
		ContentType:        content.ContentType,
		TextPreview:        domain.TruncatePreview(content.TextContent, 500),
		ImageURLs:          imageURLs,
		UserID:             content.UserID,
		Priority:           priority,
		SLADeadline:        now.Add(wait),
		EscalationReason:   reason,
		DetectedViolations: result.Violations,
		MLConfidence:       mlConfidence,
		CreatedAt:          now,
	}
}
