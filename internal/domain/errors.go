package domain

import "errors"

var (
	// ErrMalformedMessage is returned when an inbound frame is not a valid envelope or payload.
	ErrMalformedMessage = errors.New("malformed message")
	// ErrNotConnected is returned when sending on a channel that is not open.
	ErrNotConnected = errors.New("not connected")
	// ErrTransport wraps failures of the underlying channel.
	ErrTransport = errors.New("transport error")
	// ErrDisconnected is returned by a session that ended because its channel failed.
	ErrDisconnected = errors.New("session disconnected")
	// ErrSessionClosed indicates an intent was sent to a session that is no longer running.
	ErrSessionClosed = errors.New("session closed")
	// ErrNoActiveQuestion is returned for answer intents outside an active question.
	ErrNoActiveQuestion = errors.New("no active question")
	// ErrUnknownAnswer indicates a selected answer ID is not an option of the current question.
	ErrUnknownAnswer = errors.New("answer not found")
	// ErrNoSelection is returned when submitting without having selected an answer.
	ErrNoSelection = errors.New("no answer selected")
	// ErrResultNotFound is returned when no result was recorded for a session.
	ErrResultNotFound = errors.New("session result not found")
)
