package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"live-quiz-client/internal/countdown"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/leaderboard"
	"live-quiz-client/internal/protocol"
	"live-quiz-client/internal/transport/ws"
)

// Conn is the single transport channel owned by a session.
type Conn interface {
	Open(ctx context.Context) error
	Send(msg protocol.Outbound) error
	Close() error
	Events() <-chan ws.Event
}

// Config controls session pacing and notification lifetimes.
type Config struct {
	QuizID      string
	Participant string

	// AdvanceDelay is how long a result stays visible before the next question is requested.
	AdvanceDelay         time.Duration
	ResultNotification   time.Duration
	CompleteNotification time.Duration
	ErrorNotification    time.Duration
}

// DefaultConfig returns the pacing used by the web client.
func DefaultConfig() Config {
	return Config{
		AdvanceDelay:         time.Second,
		ResultNotification:   2 * time.Second,
		CompleteNotification: 5 * time.Second,
		ErrorNotification:    5 * time.Second,
	}
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock replaces the real clock, e.g. with a clockwork.FakeClock in tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLogger sets the base logger; session fields are added to it.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// Snapshot is the observable state of a session.
type Snapshot struct {
	Phase            domain.Phase
	Connection       domain.ConnectionState
	Question         *domain.Question
	Selection        string
	Remaining        int
	Ticking          bool // countdown running
	Leaderboard      []domain.LeaderboardEntry
	LeaderboardReady bool // any leaderboard received
	Me               *domain.LeaderboardEntry
}

type intentKind int

const (
	intentSelect intentKind = iota
	intentSubmit
)

type intent struct {
	kind     intentKind
	answerID string
	reply    chan error
}

type advanceDue struct {
	seq uint64
}

// Engine drives one participant through one quiz. All state is mutated on the
// goroutine running Run; other goroutines interact through intents and subscriptions.
type Engine struct {
	cfg    Config
	conn   Conn
	clock  clockwork.Clock
	logger zerolog.Logger

	session   domain.Session
	countdown *countdown.Countdown
	board     *leaderboard.Store

	ticks         chan countdown.Signal
	events        chan any
	notifications chan domain.Notification
	done          chan struct{}

	connState    domain.ConnectionState
	question     *domain.Question
	selection    string
	advanceTimer clockwork.Timer
	advanceSeq   uint64
	answered     int
	correct      int
	finalMessage string
	completedAt  time.Time
	cause        error

	mu          sync.Mutex
	subscribers map[chan Snapshot]struct{}
	latest      Snapshot
	closed      bool
}

// New creates an engine for cfg that owns conn for its whole lifetime.
func New(cfg Config, conn Conn, opts ...Option) *Engine {
	e := &Engine{
		cfg:    cfg,
		conn:   conn,
		clock:  clockwork.NewRealClock(),
		logger: log.Logger,
		session: domain.Session{
			ID:          uuid.New().String(),
			QuizID:      cfg.QuizID,
			Participant: cfg.Participant,
			Phase:       domain.PhaseJoining,
		},
		board:         leaderboard.NewStore(),
		ticks:         make(chan countdown.Signal),
		events:        make(chan any, 16),
		notifications: make(chan domain.Notification, 8),
		done:          make(chan struct{}),
		connState:     domain.ConnConnecting,
		subscribers:   make(map[chan Snapshot]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With().
		Str("session_id", e.session.ID).
		Str("quiz_id", cfg.QuizID).
		Str("participant", cfg.Participant).
		Logger()
	e.countdown = countdown.New(e.clock, e.ticks)
	e.latest = e.snapshot()
	return e
}

// ID returns the session identifier.
func (e *Engine) ID() string {
	return e.session.ID
}

// Run opens the channel and processes events until the session completes, the
// channel fails or ctx is canceled. It returns nil on completion and an error
// wrapping domain.ErrDisconnected when the channel failed.
func (e *Engine) Run(ctx context.Context) error {
	defer e.teardown()

	e.logger.Info().Msg("joining quiz")
	if err := e.conn.Open(ctx); err != nil {
		e.disconnect(err)
		e.publish()
		return e.outcome()
	}

	transport := e.conn.Events()
	for !e.session.Phase.Terminal() {
		select {
		case <-ctx.Done():
			e.logger.Info().Str("phase", e.session.Phase.String()).Msg("session canceled")
			return ctx.Err()
		case ev, ok := <-transport:
			if !ok {
				transport = nil
				ev = ws.Event{State: domain.ConnClosed}
			}
			e.handleTransport(ev)
		case sig := <-e.ticks:
			e.handleTick(sig)
		case ev := <-e.events:
			e.handle(ev)
		}
		e.publish()
	}
	return e.outcome()
}

func (e *Engine) outcome() error {
	if e.session.Phase == domain.PhaseDisconnected {
		return fmt.Errorf("%w: %w", domain.ErrDisconnected, e.cause)
	}
	return nil
}

func (e *Engine) teardown() {
	e.countdown.Cancel()
	e.stopAdvance()
	if err := e.conn.Close(); err != nil {
		e.logger.Warn().Err(err).Msg("close quiz channel")
	}

	e.mu.Lock()
	e.closed = true
	for ch := range e.subscribers {
		delete(e.subscribers, ch)
		close(ch)
	}
	e.mu.Unlock()
	close(e.done)
	close(e.notifications)
	e.logger.Info().Str("phase", e.session.Phase.String()).Msg("session ended")
}

// Select records the participant's choice for the current question.
func (e *Engine) Select(ctx context.Context, answerID string) error {
	return e.request(ctx, intent{kind: intentSelect, answerID: answerID})
}

// Submit submits answerID, or the current selection when answerID is empty.
// Only the first submission for a question is accepted.
func (e *Engine) Submit(ctx context.Context, answerID string) error {
	return e.request(ctx, intent{kind: intentSubmit, answerID: answerID})
}

func (e *Engine) request(ctx context.Context, in intent) error {
	in.reply = make(chan error, 1)
	select {
	case e.events <- in:
	case <-e.done:
		return domain.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-in.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		select {
		case err := <-in.reply:
			return err
		default:
			return domain.ErrSessionClosed
		}
	}
}

// Notifications delivers user-facing notifications. When the reader falls
// behind, newer notifications supersede the oldest. Closed when the session ends.
func (e *Engine) Notifications() <-chan domain.Notification {
	return e.notifications
}

// Subscribe returns a channel of state snapshots, starting with the current one.
// Slow readers only see the latest snapshots. The caller must invoke cancel.
func (e *Engine) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)

	e.mu.Lock()
	if e.closed {
		ch <- e.latest
		close(ch)
		e.mu.Unlock()
		return ch, func() {}
	}
	e.subscribers[ch] = struct{}{}
	ch <- e.latest
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// Result summarizes the session. Call it after Run has returned.
func (e *Engine) Result() domain.SessionResult {
	result := domain.SessionResult{
		QuizID:      e.cfg.QuizID,
		Participant: e.cfg.Participant,
		SessionID:   e.session.ID,
		Answered:    e.answered,
		Correct:     e.correct,
		Message:     e.finalMessage,
		CompletedAt: e.completedAt,
	}
	if me, ok := e.board.Lookup(e.cfg.Participant); ok {
		result.Rank = me.Rank
		result.Score = me.Score
	}
	return result
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		Phase:       e.session.Phase,
		Connection:  e.connState,
		Selection:   e.selection,
		Remaining:        e.countdown.Remaining(),
		Ticking:          e.countdown.Active(),
		Leaderboard:      e.board.Entries(),
		LeaderboardReady: e.board.Received(),
	}
	if e.question != nil {
		q := *e.question
		snap.Question = &q
	}
	if me, ok := e.board.Lookup(e.cfg.Participant); ok {
		snap.Me = &me
	}
	return snap
}

func (e *Engine) publish() {
	snap := e.snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.latest = snap
	for ch := range e.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
