package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
// The registry lock only guards lookups; each session serializes its own
// mutations, so sessions never contend with each other.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	byQuiz   map[string][]string
}

type slot struct {
	questionID string
	userID     string
}

type sessionEntry struct {
	mu           sync.Mutex
	session      domain.Session
	participants map[string]*domain.Participant
	answers      map[slot]domain.Answer
	history      map[string][]domain.Answer // per user, oldest first
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*sessionEntry),
		byQuiz:   make(map[string][]string),
	}
}

func (s *SessionStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.Code]; ok {
		return domain.ErrCodeTaken
	}
	s.sessions[session.Code] = &sessionEntry{
		session:      session,
		participants: make(map[string]*domain.Participant),
		answers:      make(map[slot]domain.Answer),
		history:      make(map[string][]domain.Answer),
	}
	s.byQuiz[session.QuizID] = append(s.byQuiz[session.QuizID], session.Code)
	return nil
}

func (s *SessionStore) entry(code string) (*sessionEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[code]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return e, nil
}

func (s *SessionStore) GetSession(_ context.Context, code string) (domain.Session, error) {
	e, err := s.entry(code)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

func (s *SessionStore) UpdateSession(_ context.Context, code string, mutate func(*domain.Session) error) (domain.Session, error) {
	e, err := s.entry(code)
	if err != nil {
		return domain.Session{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.session
	if err := mutate(&next); err != nil {
		return domain.Session{}, err
	}
	e.session = next
	return next, nil
}

func (s *SessionStore) ListSessions(_ context.Context, quizID string) ([]domain.Session, error) {
	s.mu.RLock()
	codes := append([]string(nil), s.byQuiz[quizID]...)
	entries := make([]*sessionEntry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, s.sessions[code])
	}
	s.mu.RUnlock()

	sessions := make([]domain.Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		sessions = append(sessions, e.session)
		e.mu.Unlock()
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *SessionStore) AddParticipant(_ context.Context, code string, participant domain.Participant, guard func(domain.Session) error) (domain.Participant, bool, error) {
	e, err := s.entry(code)
	if err != nil {
		return domain.Participant{}, false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := guard(e.session); err != nil {
		return domain.Participant{}, false, err
	}
	if existing, ok := e.participants[participant.UserID]; ok {
		return *existing, false, nil
	}
	participant.Score = 0
	e.participants[participant.UserID] = &participant
	return participant, true, nil
}

func (s *SessionStore) Participants(_ context.Context, code string) ([]domain.Participant, error) {
	e, err := s.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	participants := make([]domain.Participant, 0, len(e.participants))
	for _, p := range e.participants {
		participants = append(participants, *p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})
	return participants, nil
}

func (s *SessionStore) RecordAnswer(_ context.Context, code, questionID, userID string, score app.AnswerScorer) (domain.Answer, int, error) {
	e, err := s.entry(code)
	if err != nil {
		return domain.Answer{}, 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	participant, ok := e.participants[userID]
	if !ok {
		return domain.Answer{}, 0, domain.ErrNotParticipant
	}
	key := slot{questionID: questionID, userID: userID}
	if _, taken := e.answers[key]; taken {
		return domain.Answer{}, 0, domain.ErrAlreadyAnswered
	}

	history := e.history[userID]
	prior := make([]domain.Answer, 0, len(history))
	for i := len(history) - 1; i >= 0; i-- {
		prior = append(prior, history[i])
	}

	answer, err := score(e.session, prior)
	if err != nil {
		return domain.Answer{}, 0, err
	}
	answer.QuestionID = questionID
	answer.UserID = userID

	e.answers[key] = answer
	e.history[userID] = append(history, answer)
	participant.Score += answer.Points.Total
	return answer, participant.Score, nil
}

func (s *SessionStore) QuestionAnswers(_ context.Context, code, questionID string) ([]domain.Answer, error) {
	e, err := s.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	answers := make([]domain.Answer, 0)
	for key, a := range e.answers {
		if key.questionID == questionID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].CreatedAt.Before(answers[j].CreatedAt)
	})
	return answers, nil
}

// UserAnswers returns a participant's answers oldest first.
func (s *SessionStore) UserAnswers(code, userID string) []domain.Answer {
	e, err := s.entry(code)
	if err != nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.Answer(nil), e.history[userID]...)
}
