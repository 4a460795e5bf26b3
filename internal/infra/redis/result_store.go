package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"live-quiz-client/internal/domain"
)

// ResultStore keeps finished session summaries in Redis.
// Results are stored as: SET  quiz:{quizID}:result:{participant} {json}
// The quiz index is:     SADD quiz:{quizID}:results {participant}
// Both expire after the configured TTL (plus jitter).
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *ResultStore) Save(ctx context.Context, result domain.SessionResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	ttl := s.ttlWithJitter()
	indexKey := s.indexKey(result.QuizID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.resultKey(result.QuizID, result.Participant), payload, ttl)
	pipe.SAdd(ctx, indexKey, result.Participant)
	if ttl > 0 {
		pipe.Expire(ctx, indexKey, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// Get loads one result. Concurrent lookups of the same key share a round trip.
func (s *ResultStore) Get(ctx context.Context, quizID, participant string) (domain.SessionResult, error) {
	key := s.resultKey(quizID, participant)
	v, err, _ := s.sf.Do(key, func() (interface{}, error) {
		raw, err := s.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return domain.SessionResult{}, domain.ErrResultNotFound
		}
		if err != nil {
			return domain.SessionResult{}, fmt.Errorf("load result: %w", err)
		}
		return decodeResult(raw)
	})
	if err != nil {
		return domain.SessionResult{}, err
	}
	return v.(domain.SessionResult), nil
}

// List returns every unexpired result of a quiz ordered by rank. Index members
// whose result has expired are pruned.
func (s *ResultStore) List(ctx context.Context, quizID string) ([]domain.SessionResult, error) {
	indexKey := s.indexKey(quizID)
	participants, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	if len(participants) == 0 {
		return nil, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.StringCmd, len(participants))
	for i, participant := range participants {
		cmds[i] = pipe.Get(ctx, s.resultKey(quizID, participant))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list results: %w", err)
	}

	results := make([]domain.SessionResult, 0, len(participants))
	var stale []interface{}
	for i, cmd := range cmds {
		raw, err := cmd.Bytes()
		if errors.Is(err, redis.Nil) {
			stale = append(stale, participants[i])
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		result, err := decodeResult(raw)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	if len(stale) > 0 {
		_ = s.client.SRem(ctx, indexKey, stale...).Err()
	}

	domain.SortResults(results)
	return results, nil
}

func (s *ResultStore) resultKey(quizID, participant string) string {
	return "quiz:" + quizID + ":result:" + participant
}

func (s *ResultStore) indexKey(quizID string) string {
	return "quiz:" + quizID + ":results"
}

func decodeResult(raw []byte) (domain.SessionResult, error) {
	var result domain.SessionResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.SessionResult{}, fmt.Errorf("decode result: %w", err)
	}
	return result, nil
}

func (s *ResultStore) ttlWithJitter() time.Duration {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	jitterMax := int64(s.ttl) / 10
	return s.ttl + time.Duration(s.rnd.Int63n(jitterMax+1))
}
