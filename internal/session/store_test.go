package session

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })

	s, err := NewStore(fmt.Sprintf("redis://%s/0", mr.Addr()), time.Minute)
	if err != nil {
		t.Fatalf("session.NewStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

const testFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

func TestCreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Create(ctx, testFEN)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if st.ID == "" || st.Status != StatusActive || st.InitialFEN != testFEN {
		t.Fatalf("unexpected state: %+v", st)
	}

	got, err := s.Get(ctx, st.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != st.ID || got.Status != StatusActive {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGetUnknownSession(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordFrameOutcomes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Create(ctx, testFEN)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := s.RecordFrame(ctx, st.ID, OutcomeMove, "e2e4"); err != nil {
		t.Fatalf("RecordFrame move: %v", err)
	}
	if _, err := s.RecordFrame(ctx, st.ID, OutcomeNoChange, ""); err != nil {
		t.Fatalf("RecordFrame no_change: %v", err)
	}
	if _, err := s.RecordFrame(ctx, st.ID, OutcomeRejected, ""); err != nil {
		t.Fatalf("RecordFrame rejected: %v", err)
	}
	got, err := s.RecordFrame(ctx, st.ID, OutcomeUnresolved, "")
	if err != nil {
		t.Fatalf("RecordFrame unresolved: %v", err)
	}

	if got.Frames != 4 || got.Rejected != 1 || got.Unresolved != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if len(got.MovesUCI) != 1 || got.MovesUCI[0] != "e2e4" {
		t.Fatalf("unexpected moves: %v", got.MovesUCI)
	}
}

func TestRecordFrameMoveRequiresUCI(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Create(ctx, testFEN)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.RecordFrame(ctx, st.ID, OutcomeMove, "  "); err == nil {
		t.Fatal("expected error for move outcome without a move")
	}
}

func TestFinishClosesSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	st, err := s.Create(ctx, testFEN)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done, err := s.Finish(ctx, st.ID, "1-0")
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if done.Status != StatusFinished || done.Result != "1-0" {
		t.Fatalf("unexpected final state: %+v", done)
	}

	if _, err := s.RecordFrame(ctx, st.ID, OutcomeMove, "e2e4"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive after finish, got %v", err)
	}
	if _, err := s.Finish(ctx, st.ID, "1-0"); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive on double finish, got %v", err)
	}
}
