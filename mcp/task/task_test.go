package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"goa.design/mcpcore/internal/jsonvalue"
)

type notification struct {
	method string
	params jsonvalue.Value
}

func collectNotifications() (Notifier, func() []notification) {
	var mu sync.Mutex
	var got []notification
	return func(_ context.Context, method string, params jsonvalue.Value) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, notification{method: method, params: params})
		}, func() []notification {
			mu.Lock()
			defer mu.Unlock()
			out := make([]notification, len(got))
			copy(out, got)
			return out
		}
}

func statusesOf(notes []notification) []string {
	var out []string
	for _, n := range notes {
		if n.method != "notifications/tasks/status" {
			continue
		}
		status, _ := n.params.Get("status")
		s, _ := status.String()
		out = append(out, s)
	}
	return out
}

func TestSubmitRunsToCompletionAndNotifies(t *testing.T) {
	r := NewRegistry(context.Background())
	notify, notes := collectNotifications()

	done := make(chan struct{})
	taskID := r.Submit(context.Background(), "slow-add", jsonvalue.Null(), time.Minute, func(ctx context.Context, args jsonvalue.Value) (jsonvalue.Value, error) {
		ReportStatusMessage(ctx, "halfway")
		close(done)
		return jsonvalue.String("42"), nil
	}, notify)

	<-done
	require.Eventually(t, func() bool {
		rec, err := r.Status(taskID)
		return err == nil && rec.Status == StatusCompleted
	}, time.Second, time.Millisecond)

	rec, err := r.Status(taskID)
	require.NoError(t, err)
	result, ok := rec.Result.String()
	require.True(t, ok)
	require.Equal(t, "42", result)

	statuses := statusesOf(notes())
	require.Contains(t, statuses, "working")
	require.Contains(t, statuses, "completed")
}

func TestSubmitNotifiesCreatedWithRelatedTaskMeta(t *testing.T) {
	r := NewRegistry(context.Background())
	notify, notes := collectNotifications()

	done := make(chan struct{})
	taskID := r.Submit(context.Background(), "slow-add", jsonvalue.Null(), time.Minute, func(ctx context.Context, args jsonvalue.Value) (jsonvalue.Value, error) {
		close(done)
		return jsonvalue.Null(), nil
	}, notify)
	<-done

	var created *notification
	for _, n := range notes() {
		if n.method == "notifications/tasks/created" {
			n := n
			created = &n
			break
		}
	}
	require.NotNil(t, created)

	meta, ok := created.params.Get("_meta")
	require.True(t, ok)
	related, ok := meta.Get("modelcontextprotocol.io/related-task")
	require.True(t, ok)
	gotID, ok := related.Get("taskId")
	require.True(t, ok)
	s, _ := gotID.String()
	require.Equal(t, taskID, s)
}

func TestSubmitRecordsFailure(t *testing.T) {
	r := NewRegistry(context.Background())
	notify, notes := collectNotifications()

	wantErr := errors.New("boom")
	taskID := r.Submit(context.Background(), "flaky", jsonvalue.Null(), time.Minute, func(ctx context.Context, args jsonvalue.Value) (jsonvalue.Value, error) {
		return jsonvalue.Null(), wantErr
	}, notify)

	require.Eventually(t, func() bool {
		rec, err := r.Status(taskID)
		return err == nil && rec.Status == StatusFailed
	}, time.Second, time.Millisecond)

	rec, err := r.Status(taskID)
	require.NoError(t, err)
	require.EqualError(t, rec.Err, "boom")
	require.Contains(t, statusesOf(notes()), "failed")
}

func TestCancelStopsCooperativeTool(t *testing.T) {
	r := NewRegistry(context.Background())
	notify, _ := collectNotifications()

	started := make(chan struct{})
	taskID := r.Submit(context.Background(), "blocker", jsonvalue.Null(), time.Minute, func(ctx context.Context, args jsonvalue.Value) (jsonvalue.Value, error) {
		close(started)
		<-ctx.Done()
		return jsonvalue.Null(), nil
	}, notify)

	<-started
	require.NoError(t, r.Cancel(taskID, "client requested"))

	require.Eventually(t, func() bool {
		rec, err := r.Status(taskID)
		return err == nil && rec.Status == StatusCancelled
	}, time.Second, time.Millisecond)
}

func TestStatusOfUnknownTaskErrors(t *testing.T) {
	r := NewRegistry(context.Background())
	_, err := r.Status("does-not-exist")
	require.Error(t, err)
}

func TestReportStatusMessageOutsideTaskIsNoop(t *testing.T) {
	require.NotPanics(t, func() {
		ReportStatusMessage(context.Background(), "no task here")
	})
}

func TestTaskIDFromContextAbsentOutsideWorker(t *testing.T) {
	_, ok := TaskIDFromContext(context.Background())
	require.False(t, ok)
}
