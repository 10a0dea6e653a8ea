package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the game service wraps exactly one of these.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	// ErrUnavailable marks transient storage failures; the request was not applied and may be retried.
	ErrUnavailable  = errors.New("temporarily unavailable")
)

var (
	// ErrSessionNotFound is returned when no session exists for a join code.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)

	// ErrMissingIdentity is returned when the caller could not be identified.
	ErrMissingIdentity = fmt.Errorf("%w: no verified identity", ErrUnauthorized)
	// ErrNotParticipant is returned when a user tries to act before joining.
	ErrNotParticipant = fmt.Errorf("%w: not a participant of this session", ErrUnauthorized)

	// ErrNotHost guards host-only operations.
	ErrNotHost = fmt.Errorf("%w: only the quiz host may do this", ErrForbidden)

	ErrNotWaiting         = fmt.Errorf("%w: session is not waiting for players", ErrInvalidState)
	ErrNotActive          = fmt.Errorf("%w: session is not active", ErrInvalidState)
	ErrNotCurrentQuestion = fmt.Errorf("%w: question is not the current question", ErrInvalidState)
	ErrNoQuestions        = fmt.Errorf("%w: quiz has no questions", ErrInvalidState)

	// ErrAlreadyAnswered is returned for every submission after the first one for a slot.
	ErrAlreadyAnswered = fmt.Errorf("%w: answer already recorded", ErrConflict)
	// ErrCodeTaken is returned by stores when a join code is already in use.
	ErrCodeTaken = fmt.Errorf("%w: session code already in use", ErrConflict)

	// ErrOptionNotFound indicates a submitted option label is not offered by the question.
	ErrOptionNotFound = fmt.Errorf("%w: option not offered by question", ErrValidation)
	// ErrInvalidTimeLimit guards the scoring division.
	ErrInvalidTimeLimit = fmt.Errorf("%w: time limit must be positive", ErrValidation)
	// ErrInvalidElapsed is returned for elapsed times that are not numbers.
	ErrInvalidElapsed = fmt.Errorf("%w: elapsed time is not a number", ErrValidation)
	// ErrInvalidStreak is returned for negative streak counts.
	ErrInvalidStreak = fmt.Errorf("%w: streak must not be negative", ErrValidation)
)
