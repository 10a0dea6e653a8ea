package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/scoring"
)

// ElapsedPolicy selects which clock the speed bonus is measured against.
type ElapsedPolicy string

const (
	// ElapsedClient trusts the elapsed time reported by the participant (clamped).
	// Participants can claim instant answers; this is a known cheating vector.
	ElapsedClient ElapsedPolicy = "client"
	// ElapsedServer measures from the server-recorded question start to receipt.
	ElapsedServer ElapsedPolicy = "server"
)

const defaultCodeAttempts = 10

// GameService contains the live session use cases.
type GameService struct {
	sessions     SessionRepository
	quizzes      QuizRepository
	events       Broadcaster
	now          func() time.Time
	newCode      func() string
	elapsed      ElapsedPolicy
	codeAttempts int
}

// Option customizes a GameService.
type Option func(*GameService)

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *GameService) { s.now = now }
}

// WithCodeGenerator replaces the random 6-digit join code generator.
func WithCodeGenerator(gen func() string) Option {
	return func(s *GameService) { s.newCode = gen }
}

// WithElapsedPolicy selects client- or server-measured answer timing.
func WithElapsedPolicy(p ElapsedPolicy) Option {
	return func(s *GameService) {
		if p != "" {
			s.elapsed = p
		}
	}
}

// WithCodeAttempts bounds how many join codes Launch tries before giving up.
func WithCodeAttempts(n int) Option {
	return func(s *GameService) {
		if n > 0 {
			s.codeAttempts = n
		}
	}
}

func NewGameService(store SessionRepository, quizzes QuizRepository, events Broadcaster, opts ...Option) *GameService {
	s := &GameService{
		sessions:     store,
		quizzes:      quizzes,
		events:       events,
		now:          time.Now,
		newCode:      randomCode,
		elapsed:      ElapsedClient,
		codeAttempts: defaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func randomCode() string {
	return fmt.Sprintf("%06d", 100000+rand.Intn(900000))
}

// Launch creates a waiting session for one of the caller's quizzes.
func (s *GameService) Launch(ctx context.Context, caller domain.Identity, quizID string) (domain.Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if quiz.HostID != caller.UserID {
		return domain.Session{}, domain.ErrNotHost
	}
	if err := ValidateQuiz(quiz); err != nil {
		return domain.Session{}, err
	}

	for attempt := 0; attempt < s.codeAttempts; attempt++ {
		session := domain.Session{
			ID:           uuid.NewString(),
			Code:         s.newCode(),
			QuizID:       quiz.ID,
			HostID:       quiz.HostID,
			Status:       domain.StatusWaiting,
			CurrentIndex: -1,
			CreatedAt:    s.now(),
			Quiz:         quiz,
		}
		err := s.sessions.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, err
		}
		return session, nil
	}
	return domain.Session{}, fmt.Errorf("launch quiz %s: %w", quizID, domain.ErrCodeTaken)
}

// Join registers the caller in a waiting session. Joining twice returns the existing record.
func (s *GameService) Join(ctx context.Context, caller domain.Identity, code string) (domain.Participant, error) {
	participant, _, err := s.sessions.AddParticipant(ctx, code, domain.Participant{
		UserID:   caller.UserID,
		Name:     caller.Name,
		Image:    caller.Image,
		JoinedAt: s.now(),
	}, func(session domain.Session) error {
		if session.Status != domain.StatusWaiting {
			return domain.ErrNotWaiting
		}
		return nil
	})
	if err != nil {
		return domain.Participant{}, err
	}

	s.publish(ctx, code, domain.PlayerJoined{
		UserID: participant.UserID,
		Name:   participant.Name,
		Image:  participant.Image,
	})
	return participant, nil
}

// Start opens the first question. Only the quiz host may start a waiting session.
func (s *GameService) Start(ctx context.Context, caller domain.Identity, code string) (domain.Progress, error) {
	session, err := s.hostedSession(ctx, caller, code)
	if err != nil {
		return domain.Progress{}, err
	}
	quiz := session.Quiz
	first, ok := quiz.QuestionAt(0)
	if !ok {
		return domain.Progress{}, domain.ErrNoQuestions
	}

	_, err = s.sessions.UpdateSession(ctx, code, func(session *domain.Session) error {
		if session.Status != domain.StatusWaiting {
			return domain.ErrNotWaiting
		}
		session.Status = domain.StatusActive
		session.CurrentIndex = 0
		session.QuestionStartedAt = s.now()
		return nil
	})
	if err != nil {
		return domain.Progress{}, err
	}

	public := first.Redact()
	total := len(quiz.Questions)
	s.publish(ctx, code, domain.GameStarted{})
	s.publish(ctx, code, domain.NewQuestion{Question: public, Index: 0, Total: total})
	return domain.Progress{Question: &public, Index: 0, Total: total}, nil
}

// Advance moves to the next question, or ends the session after the last one.
func (s *GameService) Advance(ctx context.Context, caller domain.Identity, code string) (domain.Progress, error) {
	current, err := s.hostedSession(ctx, caller, code)
	if err != nil {
		return domain.Progress{}, err
	}
	quiz := current.Quiz
	total := len(quiz.Questions)

	session, err := s.sessions.UpdateSession(ctx, code, func(session *domain.Session) error {
		if session.Status != domain.StatusActive {
			return domain.ErrNotActive
		}
		now := s.now()
		next := session.CurrentIndex + 1
		if next < total {
			session.CurrentIndex = next
			session.QuestionStartedAt = now
			return nil
		}
		session.Status = domain.StatusEnded
		session.EndedAt = &now
		return nil
	})
	if err != nil {
		return domain.Progress{}, err
	}

	if session.Status == domain.StatusEnded {
		participants, err := s.sessions.Participants(ctx, code)
		if err != nil {
			return domain.Progress{}, err
		}
		leaderboard := Rank(participants)
		s.publish(ctx, code, domain.GameEnded{Leaderboard: leaderboard})
		return domain.Progress{Index: session.CurrentIndex, Total: total, Ended: true, Leaderboard: leaderboard}, nil
	}

	question, _ := quiz.QuestionAt(session.CurrentIndex)
	public := question.Redact()
	s.publish(ctx, code, domain.NewQuestion{Question: public, Index: session.CurrentIndex, Total: total})
	return domain.Progress{Question: &public, Index: session.CurrentIndex, Total: total}, nil
}

// SubmitAnswer records the caller's answer to the current question and updates their score.
func (s *GameService) SubmitAnswer(ctx context.Context, caller domain.Identity, code string, submission domain.AnswerSubmission) (domain.AnswerResult, error) {
	session, err := s.sessions.GetSession(ctx, code)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	question, index, ok := session.Quiz.Find(submission.QuestionID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrQuestionNotFound
	}
	if !question.HasOption(submission.Selection) {
		return domain.AnswerResult{}, domain.ErrOptionNotFound
	}

	answer, total, err := s.sessions.RecordAnswer(ctx, code, question.ID, caller.UserID,
		func(current domain.Session, prior []domain.Answer) (domain.Answer, error) {
			if current.Status != domain.StatusActive {
				return domain.Answer{}, domain.ErrNotActive
			}
			if current.CurrentIndex != index {
				return domain.Answer{}, domain.ErrNotCurrentQuestion
			}

			now := s.now()
			elapsed := submission.Elapsed
			if s.elapsed == ElapsedServer {
				elapsed = now.Sub(current.QuestionStartedAt).Seconds()
			}
			points, err := scoring.Score(scoring.Input{
				Correct:   question.Correct,
				TimeLimit: question.TimeLimit,
				Selection: submission.Selection,
				Elapsed:   elapsed,
				Streak:    scoring.Streak(prior),
			})
			if err != nil {
				return domain.Answer{}, err
			}
			return domain.Answer{
				QuestionID: question.ID,
				UserID:     caller.UserID,
				Selection:  submission.Selection,
				Correct:    submission.Selection == question.Correct,
				Elapsed:    scoring.ClampElapsed(elapsed, question.TimeLimit),
				Points:     points,
				CreatedAt:  now,
			}, nil
		})
	if err != nil {
		return domain.AnswerResult{}, err
	}

	s.publish(ctx, code, domain.PlayerAnswered{
		UserID:  caller.UserID,
		Correct: answer.Correct,
		Points:  answer.Points.Total,
	})
	if stats, err := s.answerStats(ctx, code, question); err != nil {
		log.Printf("answer stats for session %s question %s: %v", code, question.ID, err)
	} else {
		s.publish(ctx, code, domain.AnswerStatsUpdated{AnswerStats: stats})
	}

	return domain.AnswerResult{
		QuestionID:     question.ID,
		Correct:        answer.Correct,
		CorrectOption:  question.Correct,
		ScoreBreakdown: answer.Points,
		Elapsed:        answer.Elapsed,
		TimeLimit:      question.TimeLimit,
		TotalScore:     total,
	}, nil
}

// AnswerStats returns the selection distribution for a question of the session's quiz.
func (s *GameService) AnswerStats(ctx context.Context, code, questionID string) (domain.AnswerStats, error) {
	session, err := s.sessions.GetSession(ctx, code)
	if err != nil {
		return domain.AnswerStats{}, err
	}
	question, _, ok := session.Quiz.Find(questionID)
	if !ok {
		return domain.AnswerStats{}, domain.ErrQuestionNotFound
	}
	return s.answerStats(ctx, code, question)
}

func (s *GameService) answerStats(ctx context.Context, code string, question domain.Question) (domain.AnswerStats, error) {
	answers, err := s.sessions.QuestionAnswers(ctx, code, question.ID)
	if err != nil {
		return domain.AnswerStats{}, err
	}
	counts := make(map[string]int, len(domain.OptionLabels))
	for _, label := range domain.OptionLabels {
		counts[label] = 0
	}
	for _, a := range answers {
		if _, ok := counts[a.Selection]; ok {
			counts[a.Selection]++
		}
	}
	return domain.AnswerStats{
		QuestionID:    question.ID,
		OptionCounts:  counts,
		TotalAnswered: len(answers),
		CorrectOption: question.Correct,
	}, nil
}

// Leaderboard ranks the session's participants and announces the result.
func (s *GameService) Leaderboard(ctx context.Context, code string) ([]domain.LeaderboardEntry, error) {
	if _, err := s.sessions.GetSession(ctx, code); err != nil {
		return nil, err
	}
	participants, err := s.sessions.Participants(ctx, code)
	if err != nil {
		return nil, err
	}
	leaderboard := Rank(participants)
	s.publish(ctx, code, domain.LeaderboardUpdate{Leaderboard: leaderboard})
	return leaderboard, nil
}

// Snapshot returns the authoritative state clients reconcile events against.
func (s *GameService) Snapshot(ctx context.Context, code string) (domain.SessionSnapshot, error) {
	session, err := s.sessions.GetSession(ctx, code)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	quiz := session.Quiz
	participants, err := s.sessions.Participants(ctx, code)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}

	snapshot := domain.SessionSnapshot{
		Code:         session.Code,
		QuizID:       quiz.ID,
		Title:        quiz.Title,
		Status:       session.Status,
		CurrentIndex: session.CurrentIndex,
		Total:        len(quiz.Questions),
		Participants: participants,
	}
	if session.Status == domain.StatusActive {
		if q, ok := quiz.QuestionAt(session.CurrentIndex); ok {
			public := q.Redact()
			snapshot.Question = &public
		}
	}
	return snapshot, nil
}

// History lists every session launched from a quiz, newest first. Host only.
func (s *GameService) History(ctx context.Context, caller domain.Identity, quizID string) ([]domain.SessionSummary, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if quiz.HostID != caller.UserID {
		return nil, domain.ErrNotHost
	}

	sessions, err := s.sessions.ListSessions(ctx, quizID)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		participants, err := s.sessions.Participants(ctx, session.Code)
		if err != nil {
			return nil, err
		}
		summary := domain.SessionSummary{
			Code:        session.Code,
			Status:      session.Status,
			CreatedAt:   session.CreatedAt,
			PlayerCount: len(participants),
		}
		if ranked := Rank(participants); len(ranked) > 0 {
			top := ranked[0]
			summary.TopScorer = &top
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Subscribe returns a channel that receives events for a session.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *GameService) Subscribe(ctx context.Context, code string) (<-chan domain.Event, func(), error) {
	if _, err := s.sessions.GetSession(ctx, code); err != nil {
		return nil, nil, err
	}
	return s.events.Subscribe(ctx, code)
}

// hostedSession loads the session and checks the caller launched it.
func (s *GameService) hostedSession(ctx context.Context, caller domain.Identity, code string) (domain.Session, error) {
	session, err := s.sessions.GetSession(ctx, code)
	if err != nil {
		return domain.Session{}, err
	}
	if session.HostID != caller.UserID {
		return domain.Session{}, domain.ErrNotHost
	}
	return session, nil
}

// publish never fails the caller: the state change it announces is already stored.
func (s *GameService) publish(ctx context.Context, code string, event domain.Event) {
	if err := s.events.Publish(context.WithoutCancel(ctx), code, event); err != nil {
		log.Printf("publish %s to session %s failed: %v", event.EventName(), code, err)
	}
}
