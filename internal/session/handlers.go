package session

import (
	"fmt"
	"time"

	"live-quiz-client/internal/countdown"
	"live-quiz-client/internal/domain"
	"live-quiz-client/internal/protocol"
	"live-quiz-client/internal/transport/ws"
)

const (
	msgCorrect      = "Correct answer!"
	msgIncorrect    = "Incorrect answer!"
	msgComplete     = "Quiz completed!"
	msgServerError  = "Server error"
	msgConnLost     = "Connection lost. Rejoin the quiz to continue."
	msgSubmitFailed = "Could not submit answer"
	msgNextFailed   = "Could not request the next question"
)

func (e *Engine) handle(ev any) {
	switch ev := ev.(type) {
	case intent:
		ev.reply <- e.handleIntent(ev)
	case advanceDue:
		e.handleAdvance(ev)
	default:
		e.logger.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("unknown internal event")
	}
}

func (e *Engine) handleTransport(ev ws.Event) {
	if ev.Frame != nil {
		e.handleFrame(ev.Frame)
		return
	}

	e.connState = ev.State
	switch ev.State {
	case domain.ConnOpen:
		if e.session.Phase == domain.PhaseJoining {
			e.transition(domain.PhaseWaitingForQuestion)
		}
	case domain.ConnClosed, domain.ConnErrored:
		cause := ev.Err
		if cause == nil {
			cause = fmt.Errorf("%w: channel closed", domain.ErrTransport)
		}
		e.disconnect(cause)
	}
}

func (e *Engine) handleFrame(frame []byte) {
	msg, err := protocol.Decode(frame)
	if err != nil {
		e.logger.Warn().Err(err).Int("bytes", len(frame)).Msg("dropping inbound message")
		return
	}
	if e.session.Phase.Terminal() {
		return
	}

	switch m := msg.(type) {
	case protocol.LeaderboardUpdate:
		e.board.Apply(m.Entries)
		e.logger.Debug().Int("entries", len(m.Entries)).Msg("leaderboard updated")
	case protocol.QuestionPush:
		e.handleQuestion(m.Question)
	case protocol.AnswerResult:
		e.handleAnswerResult(m)
	case protocol.QuizComplete:
		e.complete(m.Message)
	case protocol.ServerError:
		message := m.Message
		if message == "" {
			message = msgServerError
		}
		e.logger.Warn().Str("message", message).Msg("server reported error")
		e.notify(message, domain.SeverityError, e.cfg.ErrorNotification)
	case protocol.Unrecognized:
		e.logger.Debug().Str("type", m.Type).Msg("ignoring unrecognized message")
	}
}

func (e *Engine) handleQuestion(q domain.Question) {
	if e.questionLive() && e.question.ID == q.ID {
		e.logger.Debug().Str("question_id", q.ID).Msg("ignoring repeated question")
		return
	}

	// A pushed question supersedes a pending request for the next one.
	e.stopAdvance()
	e.question = &q
	e.selection = ""
	e.countdown.Start(q.TimeLimitSeconds)
	e.transition(domain.PhaseQuestionActive)
	e.logger.Info().Str("question_id", q.ID).Int("time_limit", q.TimeLimitSeconds).Msg("question started")
}

// questionLive reports whether the current question is still being answered or
// awaiting its result. Outside those phases a push with the same id is a new round.
func (e *Engine) questionLive() bool {
	if e.question == nil {
		return false
	}
	return e.session.Phase == domain.PhaseQuestionActive || e.session.Phase == domain.PhaseAnswerPending
}

// handleTick reports whether sig belonged to the live countdown run.
func (e *Engine) handleTick(sig countdown.Signal) bool {
	remaining, expired, ok := e.countdown.Advance(sig)
	if !ok {
		return false
	}
	if !expired || e.session.Phase != domain.PhaseQuestionActive {
		e.logger.Trace().Int("remaining", remaining).Msg("countdown tick")
		return true
	}

	answerID := e.selection
	if answerID == "" {
		answerID = domain.NoAnswerID
	}
	e.logger.Info().Str("question_id", e.question.ID).Str("answer_id", answerID).Msg("time expired")
	// Send failures are surfaced as notifications by submit.
	_ = e.submit(answerID)
	return true
}

func (e *Engine) handleIntent(in intent) error {
	if e.session.Phase != domain.PhaseQuestionActive {
		return domain.ErrNoActiveQuestion
	}

	switch in.kind {
	case intentSelect:
		if !e.question.HasAnswer(in.answerID) {
			return fmt.Errorf("%w: %q", domain.ErrUnknownAnswer, in.answerID)
		}
		e.selection = in.answerID
		return nil
	case intentSubmit:
		if in.answerID != "" {
			if !e.question.HasAnswer(in.answerID) {
				return fmt.Errorf("%w: %q", domain.ErrUnknownAnswer, in.answerID)
			}
			e.selection = in.answerID
		}
		if e.selection == "" {
			return domain.ErrNoSelection
		}
		return e.submit(e.selection)
	default:
		return fmt.Errorf("unknown intent %d", in.kind)
	}
}

// submit sends the single answer for the active question and leaves QuestionActive.
func (e *Engine) submit(answerID string) error {
	e.countdown.Cancel()
	questionID := e.question.ID
	e.selection = answerID
	e.answered++
	e.transition(domain.PhaseAnswerPending)

	if err := e.conn.Send(protocol.SubmitAnswer{QuestionID: questionID, AnswerID: answerID}); err != nil {
		e.logger.Error().Err(err).Str("question_id", questionID).Msg("submit answer")
		e.notify(msgSubmitFailed, domain.SeverityError, e.cfg.ErrorNotification)
		return err
	}
	e.logger.Info().Str("question_id", questionID).Str("answer_id", answerID).Msg("answer submitted")
	return nil
}

func (e *Engine) handleAnswerResult(m protocol.AnswerResult) {
	if e.session.Phase != domain.PhaseAnswerPending {
		e.logger.Debug().Str("phase", e.session.Phase.String()).Msg("ignoring answer result")
		return
	}

	message, severity := m.Message, domain.SeverityError
	if m.Correct {
		e.correct++
		severity = domain.SeveritySuccess
		if message == "" {
			message = msgCorrect
		}
	} else if message == "" {
		message = msgIncorrect
	}

	e.transition(domain.PhaseShowingResult)
	e.notify(message, severity, e.cfg.ResultNotification)
	e.scheduleAdvance()
}

func (e *Engine) scheduleAdvance() {
	e.stopAdvance()
	if e.cfg.AdvanceDelay <= 0 {
		e.requestNext()
		return
	}

	seq := e.advanceSeq
	e.advanceTimer = e.clock.AfterFunc(e.cfg.AdvanceDelay, func() {
		select {
		case e.events <- advanceDue{seq: seq}:
		case <-e.done:
		}
	})
}

func (e *Engine) handleAdvance(ev advanceDue) {
	if e.advanceTimer == nil || ev.seq != e.advanceSeq {
		return
	}
	e.advanceTimer = nil
	if e.session.Phase != domain.PhaseShowingResult {
		return
	}
	e.requestNext()
}

// stopAdvance cancels a scheduled request and invalidates one already queued.
func (e *Engine) stopAdvance() {
	if e.advanceTimer != nil {
		e.advanceTimer.Stop()
		e.advanceTimer = nil
	}
	e.advanceSeq++
}

func (e *Engine) requestNext() {
	e.transition(domain.PhaseWaitingForQuestion)
	if err := e.conn.Send(protocol.RequestNextQuestion{}); err != nil {
		e.logger.Error().Err(err).Msg("request next question")
		e.notify(msgNextFailed, domain.SeverityError, e.cfg.ErrorNotification)
	}
}

func (e *Engine) complete(message string) {
	e.countdown.Cancel()
	e.stopAdvance()
	e.finalMessage = message
	e.completedAt = e.clock.Now()
	e.transition(domain.PhaseCompleted)

	if message == "" {
		message = msgComplete
	}
	e.notify(message, domain.SeverityInfo, e.cfg.CompleteNotification)
	e.logger.Info().Int("answered", e.answered).Int("correct", e.correct).Msg("quiz completed")
}

func (e *Engine) disconnect(cause error) {
	if e.session.Phase.Terminal() {
		return
	}
	e.cause = cause
	e.countdown.Cancel()
	e.stopAdvance()
	e.transition(domain.PhaseDisconnected)
	e.notify(msgConnLost, domain.SeverityError, e.cfg.ErrorNotification)
	e.logger.Error().Err(cause).Msg("quiz channel lost")
}

func (e *Engine) transition(to domain.Phase) {
	if e.session.Phase == to {
		return
	}
	e.logger.Debug().Str("from", e.session.Phase.String()).Str("to", to.String()).Msg("phase change")
	e.session.Phase = to
}

// notify never blocks the loop: when the buffer is full the oldest notification is dropped.
func (e *Engine) notify(message string, severity domain.Severity, d time.Duration) {
	n := domain.Notification{Message: message, Severity: severity, Duration: d}
	for {
		select {
		case e.notifications <- n:
			return
		default:
			select {
			case <-e.notifications:
			default:
			}
		}
	}
}
