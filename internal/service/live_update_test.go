package service

import (
	"context"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestEvaluate_FreshOnceThenStale(t *testing.T) {
	store := newTestStore(t)
	svc := NewLiveUpdateService(store, newTranslator(), quietLogger(), time.Second)
	ctx := context.Background()
	_, thread := seedConversation(t, store)

	assert.Equal(t, "0", svc.Evaluate(ctx, "u1", thread.ID))

	require.NoError(t, store.MarkThreadUnread(ctx, thread.ID))
	assert.Equal(t, "0", svc.Evaluate(ctx, "other-user", thread.ID))
	assert.Equal(t, "1", svc.Evaluate(ctx, "u1", thread.ID))
	assert.Equal(t, "0", svc.Evaluate(ctx, "u1", thread.ID))
	assert.Equal(t, "0", svc.Evaluate(ctx, "u1", "65a1b2c3d4e5f60718293a4b"))
}

func TestEvaluate_StoreErrorIsStale(t *testing.T) {
	store := &mockStore{}
	svc := NewLiveUpdateService(store, newTranslator(), quietLogger(), time.Second)
	store.On("ClaimUnread", mock.Anything, "u1", "t1").Return(false, assert.AnError)

	assert.Equal(t, "0", svc.Evaluate(context.Background(), "u1", "t1"))
}

type frameRecorder struct {
	frames chan string
}

func newFrameRecorder() *frameRecorder {
	return &frameRecorder{frames: make(chan string, 16)}
}

func (r *frameRecorder) send(ctx context.Context, frame string) error {
	select {
	case r.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *frameRecorder) next(t *testing.T) string {
	t.Helper()
	select {
	case f := <-r.frames:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no frame received")
		return ""
	}
}

func TestLiveSession_InvalidFrames(t *testing.T) {
	svc := NewLiveUpdateService(&mockStore{}, newTranslator(), quietLogger(), time.Second)
	rec := newFrameRecorder()
	session := svc.NewSession("u1", rec.send)
	ctx := context.Background()

	require.NoError(t, session.HandleFrame(ctx, "not hex at all"))
	assert.Equal(t, "Invalid thread id format", rec.next(t))

	require.NoError(t, session.HandleFrame(ctx, hex.EncodeToString([]byte("<script>"))))
	assert.Equal(t, "Invalid thread id format", rec.next(t))
	assert.Empty(t, session.bind)
}

func TestLiveSession_BindTicksAndCancel(t *testing.T) {
	store := newTestStore(t)
	svc := NewLiveUpdateService(store, newTranslator(), quietLogger(), 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	_, thread := seedConversation(t, store)
	require.NoError(t, store.MarkThreadUnread(ctx, thread.ID))

	rec := newFrameRecorder()
	session := svc.NewSession("u1", rec.send)

	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	require.NoError(t, session.HandleFrame(ctx, hex.EncodeToString([]byte(thread.ID))))
	assert.Equal(t, "1", rec.next(t))
	assert.Equal(t, "0", rec.next(t))

	require.NoError(t, store.MarkThreadUnread(ctx, thread.ID))
	assert.Eventually(t, func() bool {
		select {
		case f := <-rec.frames:
			return f == "1"
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop after cancel")
	}
}

func TestLiveSession_SendFailureEndsRun(t *testing.T) {
	store := &mockStore{}
	svc := NewLiveUpdateService(store, newTranslator(), quietLogger(), time.Hour)
	store.On("ClaimUnread", mock.Anything, "u1", "65a1b2c3d4e5f60718293a4b").Return(false, nil)

	session := svc.NewSession("u1", func(context.Context, string) error { return assert.AnError })
	require.NoError(t, session.HandleFrame(context.Background(), hex.EncodeToString([]byte("65a1b2c3d4e5f60718293a4b"))))

	assert.ErrorIs(t, session.Run(context.Background()), assert.AnError)
}
