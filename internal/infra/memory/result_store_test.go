package memory

import (
	"context"
	"errors"
	"testing"

	"live-quiz-client/internal/domain"
)

func TestResultStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()

	if _, err := store.Get(ctx, "quiz-1", "alice"); !errors.Is(err, domain.ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}

	_ = store.Save(ctx, domain.SessionResult{QuizID: "quiz-1", Participant: "alice", Score: 1})
	_ = store.Save(ctx, domain.SessionResult{QuizID: "quiz-1", Participant: "alice", Score: 4, Rank: 1})

	got, err := store.Get(ctx, "quiz-1", "alice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Score != 4 {
		t.Fatalf("expected latest result to replace earlier one, got %+v", got)
	}
}

func TestResultStoreListOrder(t *testing.T) {
	ctx := context.Background()
	store := NewResultStore()
	for _, r := range []domain.SessionResult{
		{QuizID: "quiz-1", Participant: "dave"},
		{QuizID: "quiz-1", Participant: "carol", Rank: 2},
		{QuizID: "quiz-1", Participant: "bob", Rank: 2},
		{QuizID: "quiz-1", Participant: "alice", Rank: 1},
	} {
		_ = store.Save(ctx, r)
	}

	list, _ := store.List(ctx, "quiz-1")
	var order []string
	for _, r := range list {
		order = append(order, r.Participant)
	}
	want := []string{"alice", "bob", "carol", "dave"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}

	if empty, _ := store.List(ctx, "quiz-2"); len(empty) != 0 {
		t.Fatalf("expected no results for unknown quiz")
	}
}
