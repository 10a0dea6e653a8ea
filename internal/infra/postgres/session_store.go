package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore persists sessions, participants and the answer ledger in Postgres.
// The (session, question, user) primary key on answers is the exactly-once guard;
// the participant row lock serializes a player's submissions so the score
// increment always sees the answer it belongs to.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

const sessionColumns = `id, code, quiz_id, host_id, status, current_index, question_started_at, created_at, ended_at, quiz`

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	quiz, err := json.Marshal(session.Quiz)
	if err != nil {
		return fmt.Errorf("marshal session quiz: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO game_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (code) DO NOTHING`,
		session.ID, session.Code, session.QuizID, session.HostID, string(session.Status),
		session.CurrentIndex, nullTime(session.QuestionStartedAt), session.CreatedAt, session.EndedAt, quiz)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCodeTaken
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, code string) (domain.Session, error) {
	return scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE code=$1`, code))
}

func (s *SessionStore) UpdateSession(ctx context.Context, code string, mutate func(*domain.Session) error) (domain.Session, error) {
	var updated domain.Session
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		session, err := lockSession(ctx, tx, code, "FOR UPDATE")
		if err != nil {
			return err
		}
		if err := mutate(&session); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE game_sessions
			SET status=$2, current_index=$3, question_started_at=$4, ended_at=$5
			WHERE id=$1`,
			session.ID, string(session.Status), session.CurrentIndex, nullTime(session.QuestionStartedAt), session.EndedAt)
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		updated = session
		return nil
	})
	return updated, err
}

func (s *SessionStore) ListSessions(ctx context.Context, quizID string) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+` FROM game_sessions
		WHERE quiz_id=$1
		ORDER BY created_at DESC`, quizID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (s *SessionStore) AddParticipant(ctx context.Context, code string, participant domain.Participant, guard func(domain.Session) error) (domain.Participant, bool, error) {
	var (
		stored  domain.Participant
		created bool
	)
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		// FOR SHARE blocks a concurrent start until this join commits.
		session, err := lockSession(ctx, tx, code, "FOR SHARE")
		if err != nil {
			return err
		}
		if err := guard(session); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			INSERT INTO participants (session_id, user_id, name, image, score, joined_at)
			VALUES ($1, $2, $3, $4, 0, $5)
			ON CONFLICT (session_id, user_id) DO NOTHING`,
			session.ID, participant.UserID, participant.Name, participant.Image, participant.JoinedAt)
		if err != nil {
			return fmt.Errorf("add participant: %w", err)
		}
		if tag.RowsAffected() == 1 {
			participant.Score = 0
			stored, created = participant, true
			return nil
		}

		stored, err = scanParticipant(tx.QueryRow(ctx, `
			SELECT user_id, name, image, score, joined_at FROM participants
			WHERE session_id=$1 AND user_id=$2`, session.ID, participant.UserID))
		return err
	})
	return stored, created, err
}

func (s *SessionStore) Participants(ctx context.Context, code string) ([]domain.Participant, error) {
	session, err := s.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, name, image, score, joined_at FROM participants
		WHERE session_id=$1
		ORDER BY joined_at, user_id`, session.ID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	participants := make([]domain.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	return participants, rows.Err()
}

func (s *SessionStore) RecordAnswer(ctx context.Context, code, questionID, userID string, score app.AnswerScorer) (domain.Answer, int, error) {
	var (
		recorded domain.Answer
		total    int
	)
	err := s.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		session, err := lockSession(ctx, tx, code, "FOR SHARE")
		if err != nil {
			return err
		}

		var locked string
		err = tx.QueryRow(ctx, `
			SELECT user_id FROM participants
			WHERE session_id=$1 AND user_id=$2
			FOR UPDATE`, session.ID, userID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotParticipant
		}
		if err != nil {
			return fmt.Errorf("lock participant: %w", err)
		}

		prior, taken, err := userAnswers(ctx, tx, session.ID, userID, questionID)
		if err != nil {
			return err
		}
		if taken {
			return domain.ErrAlreadyAnswered
		}

		answer, err := score(session, prior)
		if err != nil {
			return err
		}
		answer.QuestionID = questionID
		answer.UserID = userID

		tag, err := tx.Exec(ctx, `
			INSERT INTO answers (session_id, question_id, user_id, selection, is_correct, elapsed_seconds,
				base_points, speed_bonus, streak_bonus, points, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (session_id, question_id, user_id) DO NOTHING`,
			session.ID, questionID, userID, answer.Selection, answer.Correct, answer.Elapsed,
			answer.Points.Base, answer.Points.SpeedBonus, answer.Points.StreakBonus, answer.Points.Total, answer.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrAlreadyAnswered
		}

		err = tx.QueryRow(ctx, `
			UPDATE participants SET score = score + $3
			WHERE session_id=$1 AND user_id=$2
			RETURNING score`, session.ID, userID, answer.Points.Total).Scan(&total)
		if err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		recorded = answer
		return nil
	})
	return recorded, total, err
}

func (s *SessionStore) QuestionAnswers(ctx context.Context, code, questionID string) ([]domain.Answer, error) {
	session, err := s.GetSession(ctx, code)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+answerColumns+` FROM answers
		WHERE session_id=$1 AND question_id=$2
		ORDER BY seq`, session.ID, questionID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := make([]domain.Answer, 0)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

const answerColumns = `question_id, user_id, selection, is_correct, elapsed_seconds,
	base_points, speed_bonus, streak_bonus, points, created_at`

// userAnswers returns the participant's answers newest first and whether
// questionID is among them.
func userAnswers(ctx context.Context, tx pgx.Tx, sessionID, userID, questionID string) ([]domain.Answer, bool, error) {
	rows, err := tx.Query(ctx, `
		SELECT `+answerColumns+` FROM answers
		WHERE session_id=$1 AND user_id=$2
		ORDER BY seq DESC`, sessionID, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load answer history: %w", err)
	}
	defer rows.Close()

	var (
		prior []domain.Answer
		taken bool
	)
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, false, err
		}
		if a.QuestionID == questionID {
			taken = true
		}
		prior = append(prior, a)
	}
	return prior, taken, rows.Err()
}

func lockSession(ctx context.Context, tx pgx.Tx, code, lock string) (domain.Session, error) {
	return scanSession(tx.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE code=$1 `+lock, code))
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		session domain.Session
		status  string
		started *time.Time
		quiz    []byte
	)
	err := row.Scan(&session.ID, &session.Code, &session.QuizID, &session.HostID, &status,
		&session.CurrentIndex, &started, &session.CreatedAt, &session.EndedAt, &quiz)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("scan session: %w", err)
	}
	if err := json.Unmarshal(quiz, &session.Quiz); err != nil {
		return domain.Session{}, fmt.Errorf("decode session quiz: %w", err)
	}
	session.Status = domain.SessionStatus(status)
	if started != nil {
		session.QuestionStartedAt = *started
	}
	return session, nil
}

func scanParticipant(row pgx.Row) (domain.Participant, error) {
	var p domain.Participant
	if err := row.Scan(&p.UserID, &p.Name, &p.Image, &p.Score, &p.JoinedAt); err != nil {
		return domain.Participant{}, fmt.Errorf("scan participant: %w", err)
	}
	return p, nil
}

func scanAnswer(row pgx.Row) (domain.Answer, error) {
	var a domain.Answer
	err := row.Scan(&a.QuestionID, &a.UserID, &a.Selection, &a.Correct, &a.Elapsed,
		&a.Points.Base, &a.Points.SpeedBonus, &a.Points.StreakBonus, &a.Points.Total, &a.CreatedAt)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("scan answer: %w", err)
	}
	return a, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
