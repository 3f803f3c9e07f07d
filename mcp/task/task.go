// Package task implements the background task registry: long-running tool
// invocations that report lifecycle notifications instead of blocking the
// request that started them.
package task

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"goa.design/mcpcore/internal/jsonvalue"
	"goa.design/mcpcore/internal/mcperr"
)

// MaxEntries bounds the registry; the oldest terminal entry is evicted to
// make room for a new submission once this many tasks are tracked.
const MaxEntries = 1024

// relatedTaskMetaKey is the _meta key a notifications/tasks/created
// notification carries its task id under, so a client can correlate the
// notification to the taskId it received from tools/call without relying on
// a flat top-level field.
const relatedTaskMetaKey = "modelcontextprotocol.io/related-task"

// Status is a task's lifecycle state.
type Status string

const (
	StatusSubmitted     Status = "submitted"
	StatusWorking       Status = "working"
	StatusInputRequired Status = "input_required"
	StatusCompleted     Status = "completed"
	StatusFailed        Status = "failed"
	StatusCancelled     Status = "cancelled"
)

// IsTerminal reports whether s is a sticky end state.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Record is a point-in-time snapshot of a task's state.
type Record struct {
	TaskID        string
	ToolName      string
	Arguments     jsonvalue.Value
	Status        Status
	StatusMessage string
	Result        jsonvalue.Value
	Err           error
	TTL           time.Duration
	CreatedAt     time.Time
}

// Notifier delivers lifecycle notifications back to the originating
// session. Method is one of the notifications/tasks/* names.
type Notifier func(ctx context.Context, method string, params jsonvalue.Value)

// InvokeFunc runs a tool to completion, reporting intermediate status via
// ReportStatusMessage(ctx, ...) on the context it is given.
type InvokeFunc func(ctx context.Context, args jsonvalue.Value) (jsonvalue.Value, error)

type entry struct {
	mu     sync.Mutex
	rec    Record
	cancel context.CancelFunc
}

type ctxKey struct{}

// Registry tracks background tasks and runs their invocations on a managed
// pool of worker goroutines.
type Registry struct {
	mu       sync.Mutex
	tasks    map[string]*entry
	order    *list.List // oldest-first, element value is a taskID string
	group    *errgroup.Group
	groupCtx context.Context
}

// NewRegistry returns an empty task registry. ctx bounds the lifetime of
// every worker goroutine the registry spawns; cancelling it cancels every
// worker's context, and Shutdown then waits for the workers to return.
func NewRegistry(ctx context.Context) *Registry {
	g, gctx := errgroup.WithContext(ctx)
	return &Registry{
		tasks:    make(map[string]*entry),
		order:    list.New(),
		group:    g,
		groupCtx: gctx,
	}
}

// Shutdown waits for all in-flight task goroutines to observe cancellation
// and return. Callers should cancel the context passed to NewRegistry (or a
// parent of it) before calling Shutdown so workers actually stop.
func (r *Registry) Shutdown() error {
	return r.group.Wait()
}

// Submit allocates a task id, records it as submitted, and schedules invoke
// on a worker goroutine. notify is called for every lifecycle transition
// (created, working, status updates, terminal state).
func (r *Registry) Submit(ctx context.Context, toolName string, args jsonvalue.Value, ttl time.Duration, invoke InvokeFunc, notify Notifier) string {
	taskID := uuid.NewString()

	e := &entry{rec: Record{
		TaskID:    taskID,
		ToolName:  toolName,
		Arguments: args,
		Status:    StatusSubmitted,
		TTL:       ttl,
		CreatedAt: timeNow(),
	}}

	r.mu.Lock()
	r.evictTerminalLocked()
	r.tasks[taskID] = e
	r.order.PushBack(taskID)
	r.mu.Unlock()

	if notify != nil {
		related := jsonvalue.NewObject()
		related.Set("taskId", jsonvalue.String(taskID))
		meta := jsonvalue.NewObject()
		meta.Set(relatedTaskMetaKey, jsonvalue.FromObject(related))
		params := jsonvalue.NewObject()
		params.Set("_meta", jsonvalue.FromObject(meta))
		notify(ctx, "notifications/tasks/created", jsonvalue.FromObject(params))
	}

	workerCtx, cancel := context.WithCancel(r.groupCtx)
	e.mu.Lock()
	e.cancel = cancel
	e.mu.Unlock()

	r.group.Go(func() error {
		defer cancel()
		r.transition(e, StatusWorking, "", jsonvalue.Null(), nil, notify)

		taskCtx := context.WithValue(workerCtx, ctxKey{}, &taskContext{registry: r, taskID: taskID, notify: notify})
		result, err := invoke(taskCtx, args)
		if workerCtx.Err() != nil && err == nil {
			r.transition(e, StatusCancelled, "", jsonvalue.Null(), nil, notify)
			return nil
		}
		if err != nil {
			r.transition(e, StatusFailed, "", jsonvalue.Null(), err, notify)
			return nil
		}
		r.transition(e, StatusCompleted, "", result, nil, notify)
		return nil
	})

	return taskID
}

// evictTerminalLocked drops the oldest terminal task to make room once the
// registry is at capacity. Called with r.mu held.
func (r *Registry) evictTerminalLocked() {
	if len(r.tasks) < MaxEntries {
		return
	}
	for el := r.order.Front(); el != nil; el = el.Next() {
		id := el.Value.(string)
		e := r.tasks[id]
		e.mu.Lock()
		terminal := e.rec.Status.IsTerminal()
		e.mu.Unlock()
		if terminal {
			delete(r.tasks, id)
			r.order.Remove(el)
			return
		}
	}
}

func (r *Registry) transition(e *entry, status Status, statusMessage string, result jsonvalue.Value, err error, notify Notifier) {
	e.mu.Lock()
	if e.rec.Status.IsTerminal() {
		e.mu.Unlock()
		return
	}
	e.rec.Status = status
	if statusMessage != "" {
		e.rec.StatusMessage = statusMessage
	}
	if !result.IsNull() {
		e.rec.Result = result
	}
	if err != nil {
		e.rec.Err = err
	}
	e.mu.Unlock()

	if notify == nil {
		return
	}
	params := jsonvalue.NewObject()
	params.Set("taskId", jsonvalue.String(e.rec.TaskID))
	params.Set("status", jsonvalue.String(string(status)))
	if statusMessage != "" {
		params.Set("statusMessage", jsonvalue.String(statusMessage))
	}
	if status == StatusFailed && err != nil {
		params.Set("error", jsonvalue.String(err.Error()))
	}
	notify(context.Background(), "notifications/tasks/status", jsonvalue.FromObject(params))
}

// Status returns a snapshot of taskID's current record.
func (r *Registry) Status(taskID string) (Record, error) {
	r.mu.Lock()
	e, ok := r.tasks[taskID]
	r.mu.Unlock()
	if !ok {
		return Record{}, mcperr.Newf(mcperr.NotFound, "unknown task %q", taskID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

// Cancel requests cooperative cancellation of taskID's worker context.
// Terminal tasks are unaffected.
func (r *Registry) Cancel(taskID string, reason string) error {
	r.mu.Lock()
	e, ok := r.tasks[taskID]
	r.mu.Unlock()
	if !ok {
		return mcperr.Newf(mcperr.NotFound, "unknown task %q", taskID)
	}
	e.mu.Lock()
	terminal := e.rec.Status.IsTerminal()
	cancel := e.cancel
	e.mu.Unlock()
	if terminal {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	return nil
}

// ReportStatusMessage records a status message against the task carried on
// ctx, notifying the owning session. It is a no-op if ctx carries no task.
func ReportStatusMessage(ctx context.Context, message string) {
	tc, ok := ctx.Value(ctxKey{}).(*taskContext)
	if !ok {
		return
	}
	tc.registry.mu.Lock()
	e, ok := tc.registry.tasks[tc.taskID]
	tc.registry.mu.Unlock()
	if !ok {
		return
	}
	tc.registry.transition(e, StatusWorking, message, jsonvalue.Null(), nil, tc.notify)
}

type taskContext struct {
	registry *Registry
	taskID   string
	notify   Notifier
}

// TaskIDFromContext returns the task id associated with ctx, if any.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	tc, ok := ctx.Value(ctxKey{}).(*taskContext)
	if !ok {
		return "", false
	}
	return tc.taskID, true
}

// timeNow is a thin indirection so tests can avoid depending on wall clock
// skew when asserting ordering; production always uses time.Now.
var timeNow = time.Now
