package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connection-chat/internal/mocks"
)

func TestReconcileCorrectsDrift(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	chatID := f.openChat(t)
	f.send(t, chatID, patientID, "a")
	f.send(t, chatID, patientID, "b")
	f.send(t, chatID, doctorID, "c")

	f.store.ForceUnread(connID, 9, 0)
	require.NoError(t, f.reconciler.Reconcile(ctx, connID))

	conn, _ := f.store.Connection(connID)
	assert.Equal(t, 2, conn.DoctorUnreadCount)
	assert.Equal(t, 1, conn.PatientUnreadCount)
}

func TestReconcileDoesNotReadBeforeWriting(t *testing.T) {
	f := newFixture(t, nil)
	chatID := f.openChat(t)
	f.send(t, chatID, patientID, "a")
	f.store.ForceUnread(connID, 0, 5)

	f.store.FailOn("GetConnection", errors.New("unexpected read"))
	f.store.FailOn("CountUnread", errors.New("unexpected read"))
	require.NoError(t, f.reconciler.Reconcile(context.Background(), connID))

	conn, _ := f.store.Connection(connID)
	assert.Equal(t, 1, conn.DoctorUnreadCount)
	assert.Zero(t, conn.PatientUnreadCount)
}

func TestReconcileFailurePropagates(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailOn("RecomputeUnread", errors.New("boom"))
	assert.Error(t, f.reconciler.Reconcile(context.Background(), connID))
}

type hookedConnections struct {
	*mocks.Store
	before, after func()
}

func (h *hookedConnections) RecomputeUnread(ctx context.Context, connectionID string) (int, int, error) {
	if h.before != nil {
		h.before()
	}
	doctor, patient, err := h.Store.RecomputeUnread(ctx, connectionID)
	if h.after != nil {
		h.after()
	}
	return doctor, patient, err
}

func TestReconcileKeepsSendsAroundIt(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	chatID := f.openChat(t)
	f.send(t, chatID, patientID, "a")

	hooked := &hookedConnections{
		Store:  f.store,
		before: func() { f.send(t, chatID, patientID, "b") },
		after:  func() { f.send(t, chatID, patientID, "c") },
	}
	require.NoError(t, NewReconciler(hooked).Reconcile(ctx, connID))

	unread, err := f.store.CountUnread(ctx, chatID, doctorID)
	require.NoError(t, err)
	assert.Equal(t, 3, unread)
	conn, _ := f.store.Connection(connID)
	assert.Equal(t, unread, conn.DoctorUnreadCount)
}

func TestReconcileWithoutChatZeroesCounters(t *testing.T) {
	f := newFixture(t, nil)
	f.store.ForceUnread(connID, 3, 4)

	require.NoError(t, f.reconciler.Reconcile(context.Background(), connID))
	conn, _ := f.store.Connection(connID)
	assert.Zero(t, conn.DoctorUnreadCount)
	assert.Zero(t, conn.PatientUnreadCount)
}

func TestReconcileUnknownConnection(t *testing.T) {
	f := newFixture(t, nil)
	assert.Error(t, f.reconciler.Reconcile(context.Background(), "nope"))
}

func TestReconcileAll(t *testing.T) {
	f := newFixture(t, nil)
	f.openChat(t)
	f.store.ForceUnread(connID, 5, 5)
	f.store.ForceUnread(offConnID, 7, 7)

	done, err := f.reconciler.ReconcileAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, done, "inactive connections are skipped")

	conn, _ := f.store.Connection(connID)
	assert.Zero(t, conn.DoctorUnreadCount)
	off, _ := f.store.Connection(offConnID)
	assert.Equal(t, 7, off.DoctorUnreadCount)
}

func TestReconcileAllListFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.store.FailOn("ListActiveConnectionIDs", errors.New("boom"))

	_, err := f.reconciler.ReconcileAll(context.Background())
	assert.Error(t, err)
}

func TestReconcilerRunStopsWithContext(t *testing.T) {
	f := newFixture(t, nil)
	f.store.ForceUnread(connID, 2, 2)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.reconciler.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		conn, _ := f.store.Connection(connID)
		return conn.DoctorUnreadCount == 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reconciler did not stop")
	}
}
