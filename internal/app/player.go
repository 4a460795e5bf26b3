package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/session"
)

// ResultRepository abstracts where finished sessions are kept (in-memory, Redis, etc).
type ResultRepository interface {
	Save(ctx context.Context, result domain.SessionResult) error
	Get(ctx context.Context, quizID, participant string) (domain.SessionResult, error)
	List(ctx context.Context, quizID string) ([]domain.SessionResult, error)
}

// ConnFactory opens a fresh quiz channel for every session attempt.
type ConnFactory interface {
	NewConn(quizID, participant string) session.Conn
}

// ConnFactoryFunc adapts a function to ConnFactory.
type ConnFactoryFunc func(quizID, participant string) session.Conn

func (f ConnFactoryFunc) NewConn(quizID, participant string) session.Conn {
	return f(quizID, participant)
}

// ReconnectPolicy controls rejoining after a lost channel. MaxRetries 0 disables it.
type ReconnectPolicy struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Player contains the client-side quiz use cases.
type Player struct {
	conns     ConnFactory
	results   ResultRepository
	reconnect ReconnectPolicy
	options   []session.Option
	logger    zerolog.Logger
}

func NewPlayer(conns ConnFactory, results ResultRepository, reconnect ReconnectPolicy, opts ...session.Option) *Player {
	return &Player{
		conns:     conns,
		results:   results,
		reconnect: reconnect,
		options:   opts,
		logger:    log.With().Str("component", "player").Logger(),
	}
}

// Play joins the quiz described by cfg and runs it to completion. Every attempt
// gets a new session engine, which is handed to attach before it starts so a
// display can subscribe. The result of a completed session is saved.
func (p *Player) Play(ctx context.Context, cfg session.Config, attach func(*session.Engine)) (domain.SessionResult, error) {
	logger := p.logger.With().Str("quiz_id", cfg.QuizID).Str("participant", cfg.Participant).Logger()

	var result domain.SessionResult
	attempt := 0
	operation := func() error {
		attempt++
		engine := session.New(cfg, p.conns.NewConn(cfg.QuizID, cfg.Participant), p.options...)
		if attach != nil {
			attach(engine)
		}

		err := engine.Run(ctx)
		switch {
		case err == nil:
			result = engine.Result()
			return nil
		case errors.Is(err, domain.ErrDisconnected) && ctx.Err() == nil:
			return err
		default:
			return backoff.Permanent(err)
		}
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("rejoining quiz")
	}
	if err := backoff.RetryNotify(operation, p.backoff(ctx), notify); err != nil {
		return domain.SessionResult{}, err
	}

	logger.Info().Int("rank", result.Rank).Int("score", result.Score).Msg("quiz finished")
	if p.results == nil {
		return result, nil
	}
	if err := p.results.Save(ctx, result); err != nil {
		return result, fmt.Errorf("save result: %w", err)
	}
	return result, nil
}

// Result looks up a stored session summary.
func (p *Player) Result(ctx context.Context, quizID, participant string) (domain.SessionResult, error) {
	if p.results == nil {
		return domain.SessionResult{}, domain.ErrResultNotFound
	}
	return p.results.Get(ctx, quizID, participant)
}

// Results lists the stored summaries of a quiz ordered by rank.
func (p *Player) Results(ctx context.Context, quizID string) ([]domain.SessionResult, error) {
	if p.results == nil {
		return nil, nil
	}
	return p.results.List(ctx, quizID)
}

func (p *Player) backoff(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	if p.reconnect.InitialInterval > 0 {
		policy.InitialInterval = p.reconnect.InitialInterval
	}
	if p.reconnect.MaxInterval > 0 {
		policy.MaxInterval = p.reconnect.MaxInterval
	}
	policy.MaxElapsedTime = 0
	policy.Reset()

	retries := p.reconnect.MaxRetries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
}
