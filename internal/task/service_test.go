package task

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklane.io/internal/auth"
)

type recordingSyncer struct {
	calls []Status
	err   error
}

func (s *recordingSyncer) Sync(_ context.Context, _ string, status Status) error {
	s.calls = append(s.calls, status)
	return s.err
}

func newTestService(t *testing.T, store Store, opts ...ServiceOption) *Service {
	t.Helper()
	svc, err := NewService(store, opts...)
	require.NoError(t, err)
	return svc
}

func seedTask(t *testing.T, store *memStore, status Status) *Task {
	t.Helper()
	item := &Task{
		ID:          "t-1",
		WorkspaceID: "ws-1",
		ClientID:    "c-1",
		Title:       "Landing page",
		Assignees:   []string{"worker"},
		Status:      status,
		CreatorID:   "creator",
	}
	require.NoError(t, store.Create(context.Background(), item))
	return item
}

func TestCreateRequiresManagePermission(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Create(ctx, identityOf(auth.KindMember, "worker", auth.PermTaskMoveOwn), "c-1", "Landing page", "", nil)
	assert.ErrorIs(t, err, auth.ErrForbidden)

	created, err := svc.Create(ctx, identityOf(auth.KindOwner, "boss"), "c-1", "  Landing page  ", "desc", []string{"worker", "worker", ""})
	require.NoError(t, err)
	assert.Equal(t, "Landing page", created.Title)
	assert.Equal(t, StatusTodo, created.Status)
	assert.Equal(t, []string{"worker"}, created.Assignees)
}

func TestListVisibility(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusTodo)
	require.NoError(t, store.Create(ctx, &Task{
		ID: "t-2", WorkspaceID: "ws-1", ClientID: "c-2", Title: "Other", CreatorID: "someone", Status: StatusTodo,
	}))

	all, err := svc.List(ctx, identityOf(auth.KindOwner, "boss"))
	require.NoError(t, err)
	assert.Len(t, all, 2)

	mine, err := svc.List(ctx, identityOf(auth.KindMember, "worker", auth.PermTaskMoveOwn))
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "t-1", mine[0].ID)

	clients, err := svc.List(ctx, identityOf(auth.KindClient, "c-1"))
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "t-1", clients[0].ID)
}

func TestGetInvisibleIsNotFound(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusTodo)

	// A member with no relationship to the item cannot see it...
	_, err := svc.Get(ctx, identityOf(auth.KindMember, "stranger", auth.PermTaskMoveOwn), "t-1")
	assert.ErrorIs(t, err, ErrNotFound)
	// ...and neither can another client, with the identical error.
	_, err = svc.Get(ctx, identityOf(auth.KindClient, "c-2"), "t-1")
	assert.ErrorIs(t, err, ErrNotFound)
	// Cross-workspace access reads the same way.
	foreign := identityOf(auth.KindOwner, "other")
	foreign.Principal.WorkspaceID = "ws-2"
	_, err = svc.Get(ctx, foreign, "t-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTransitionFullLifecycle(t *testing.T) {
	store := newMemStore()
	syncer := &recordingSyncer{}
	svc := newTestService(t, store, WithSyncer(syncer))
	ctx := context.Background()
	seedTask(t, store, StatusTodo)

	worker := identityOf(auth.KindMember, "worker", auth.PermTaskMoveOwn)
	pm := identityOf(auth.KindMember, "pm", auth.PermTaskViewAll, auth.PermTaskSendToClient, auth.PermTaskReview)
	client := identityOf(auth.KindClient, "c-1")

	steps := []struct {
		who *auth.Identity
		to  Status
	}{
		{worker, StatusDoing},
		{worker, StatusReadyForReview},
		{pm, StatusRevision},
		{worker, StatusDoing},
		{worker, StatusReadyForReview},
		{pm, StatusSentToClient},
		{client, StatusDone},
	}
	for _, step := range steps {
		moved, err := svc.Transition(ctx, step.who, "t-1", step.to, "")
		require.NoError(t, err, "to %s", step.to)
		assert.Equal(t, step.to, moved.Status)
	}

	history, err := svc.History(ctx, pm, "t-1")
	require.NoError(t, err)
	require.Len(t, history, len(steps))
	assert.Equal(t, StatusTodo, history[0].From)
	assert.Equal(t, StatusDone, history[len(history)-1].To)
	assert.Equal(t, "c-1", history[len(history)-1].ActorID)

	// Every applied transition triggered a sync.
	assert.Len(t, syncer.calls, len(steps))
	assert.Equal(t, StatusDone, syncer.calls[len(syncer.calls)-1])
}

func TestTransitionIllegalEdge(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusTodo)

	_, err := svc.Transition(ctx, identityOf(auth.KindOwner, "boss"), "t-1", StatusDone, "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusTodo, invalid.From)
	assert.Equal(t, []Status{StatusDoing}, invalid.Legal)
}

func TestTransitionTerminalState(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusDone)

	_, err := svc.Transition(ctx, identityOf(auth.KindOwner, "boss"), "t-1", StatusDoing, "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Contains(t, invalid.Error(), "none (terminal)")
}

func TestTransitionForbiddenForUninvolvedMember(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusTodo)

	_, err := svc.Transition(ctx, identityOf(auth.KindMember, "stranger", auth.PermTaskMoveOwn), "t-1", StatusDoing, "")
	// The item is invisible to an uninvolved member, so the error is
	// absence rather than a permission complaint.
	assert.ErrorIs(t, err, ErrNotFound)

	// A visible item with a missing gate yields Forbidden.
	_, err = svc.Transition(ctx, identityOf(auth.KindMember, "worker"), "t-1", StatusDoing, "")
	assert.ErrorIs(t, err, auth.ErrForbidden)
}

func TestTransitionRetriesOnceOnConcurrentMove(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusReadyForReview)

	pm := identityOf(auth.KindMember, "pm", auth.PermTaskViewAll, auth.PermTaskReview, auth.PermTaskSendToClient)

	// A concurrent actor moves the item to REVISION between this caller's
	// read and its conditional write.
	store.onApply = func() error {
		store.mu.Lock()
		store.tasks["t-1"].Status = StatusRevision
		store.mu.Unlock()
		return nil
	}

	// The retry re-reads REVISION; REVISION -> REVISION is illegal, so the
	// caller gets the state-machine error computed against fresh state.
	_, err := svc.Transition(ctx, pm, "t-1", StatusRevision, "")
	var invalid *InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusRevision, invalid.From)
}

func TestTransitionWriteFailureLeavesNoPartialState(t *testing.T) {
	store := newMemStore()
	syncer := &recordingSyncer{}
	svc := newTestService(t, store, WithSyncer(syncer))
	ctx := context.Background()
	seedTask(t, store, StatusTodo)

	store.onApply = func() error { return context.DeadlineExceeded }

	_, err := svc.Transition(ctx, identityOf(auth.KindOwner, "boss"), "t-1", StatusDoing, "")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// The apply failed whole: no status move, no orphan ledger row, no
	// sync of dependent aggregates.
	current, err := store.Find(ctx, "ws-1", "t-1")
	require.NoError(t, err)
	assert.Equal(t, StatusTodo, current.Status)
	history, err := store.History(ctx, "t-1")
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, syncer.calls)
}

func TestTransitionSyncFailureDoesNotPropagate(t *testing.T) {
	store := newMemStore()
	syncer := &recordingSyncer{err: context.DeadlineExceeded}
	svc := newTestService(t, store, WithSyncer(syncer))
	ctx := context.Background()
	seedTask(t, store, StatusTodo)

	moved, err := svc.Transition(ctx, identityOf(auth.KindOwner, "boss"), "t-1", StatusDoing, "")
	require.NoError(t, err)
	assert.Equal(t, StatusDoing, moved.Status)
	assert.Len(t, syncer.calls, 1)
}

func TestUpdateDetailsFrozenWhenDone(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusDone)

	title := "New title"
	_, err := svc.UpdateDetails(ctx, identityOf(auth.KindOwner, "boss"), "t-1", Update{Title: &title})
	assert.ErrorIs(t, err, ErrTerminal)
}

func TestUpdateDetailsEdits(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	ctx := context.Background()
	seedTask(t, store, StatusDoing)

	title := "  Refined title "
	updated, err := svc.UpdateDetails(ctx, identityOf(auth.KindOwner, "boss"), "t-1", Update{
		Title:     &title,
		Assignees: []string{"worker", "second", "worker"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Refined title", updated.Title)
	assert.Equal(t, []string{"worker", "second"}, updated.Assignees)

	empty := "   "
	_, err = svc.UpdateDetails(ctx, identityOf(auth.KindOwner, "boss"), "t-1", Update{Title: &empty})
	assert.ErrorIs(t, err, auth.ErrInvalidInput)
}
