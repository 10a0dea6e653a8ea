package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// AnswerScorer builds the answer to record. It runs inside the store's critical
// section for the (session, participant) pair, so session is the state the
// answer will be committed against and prior holds the participant's earlier
// answers in this session, newest first.
type AnswerScorer func(session domain.Session, prior []domain.Answer) (domain.Answer, error)

// SessionRepository abstracts how live sessions are stored (in-memory, Redis, Postgres).
//
// Implementations must make UpdateSession a serialized read-modify-write per
// session and RecordAnswer a single atomic step: the slot existence check, the
// insert and the participant score increment either all happen or none do.
type SessionRepository interface {
	// CreateSession stores a new session. Returns domain.ErrCodeTaken if the code is in use.
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, code string) (domain.Session, error)
	// UpdateSession applies mutate to the current state and persists the result.
	// If mutate returns an error nothing is written.
	UpdateSession(ctx context.Context, code string, mutate func(*domain.Session) error) (domain.Session, error)
	ListSessions(ctx context.Context, quizID string) ([]domain.Session, error)

	// AddParticipant inserts the participant unless they already joined, in which
	// case the stored record is returned with created=false. guard is evaluated
	// against the session state the insert commits against.
	AddParticipant(ctx context.Context, code string, participant domain.Participant, guard func(domain.Session) error) (stored domain.Participant, created bool, err error)
	Participants(ctx context.Context, code string) ([]domain.Participant, error)

	// RecordAnswer fills the (questionID, userID) slot with the answer built by
	// score and adds its points to the participant. It returns the stored answer
	// and the participant's new total. Fails with domain.ErrAlreadyAnswered if
	// the slot is taken and domain.ErrNotParticipant if userID never joined.
	RecordAnswer(ctx context.Context, code, questionID, userID string, score AnswerScorer) (domain.Answer, int, error)
	QuestionAnswers(ctx context.Context, code, questionID string) ([]domain.Answer, error)
}

// Broadcaster fans session events out to subscribers. Delivery is best effort.
type Broadcaster interface {
	Publish(ctx context.Context, code string, event domain.Event) error
	// Subscribe returns a channel of events for one session. The caller must
	// invoke the returned cancel function to avoid leaks.
	Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error)
}
