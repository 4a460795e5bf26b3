package memory

import (
	"context"
	"sync"

	"live-quiz-client/internal/domain"
)

// ResultStore is an in-memory implementation of app.ResultRepository.
type ResultStore struct {
	mu      sync.RWMutex
	results map[string]map[string]domain.SessionResult
}

func NewResultStore() *ResultStore {
	return &ResultStore{
		results: make(map[string]map[string]domain.SessionResult),
	}
}

func (s *ResultStore) Save(_ context.Context, result domain.SessionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.results[result.QuizID]
	if !ok {
		quiz = make(map[string]domain.SessionResult)
		s.results[result.QuizID] = quiz
	}
	quiz[result.Participant] = result
	return nil
}

func (s *ResultStore) Get(_ context.Context, quizID, participant string) (domain.SessionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result, ok := s.results[quizID][participant]
	if !ok {
		return domain.SessionResult{}, domain.ErrResultNotFound
	}
	return result, nil
}

func (s *ResultStore) List(_ context.Context, quizID string) ([]domain.SessionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SessionResult, 0, len(s.results[quizID]))
	for _, result := range s.results[quizID] {
		out = append(out, result)
	}
	domain.SortResults(out)
	return out, nil
}
