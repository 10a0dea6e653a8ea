package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()

	session := domain.Session{ID: "s1", Code: "123456", QuizID: "quiz-1", Status: domain.StatusWaiting, CurrentIndex: -1}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.CreateSession(ctx, session); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}
	if _, err := store.GetSession(ctx, "999999"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	updated, err := store.UpdateSession(ctx, "123456", func(s *domain.Session) error {
		s.Status = domain.StatusActive
		s.CurrentIndex = 0
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != domain.StatusActive {
		t.Fatalf("expected active, got %s", updated.Status)
	}

	_, err = store.UpdateSession(ctx, "123456", func(s *domain.Session) error {
		s.CurrentIndex = 7
		return domain.ErrNotActive
	})
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	got, _ := store.GetSession(ctx, "123456")
	if got.CurrentIndex != 0 {
		t.Fatalf("failed mutation leaked: index %d", got.CurrentIndex)
	}
}

func TestSessionStoreAddParticipantIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newActiveStore(t, domain.StatusWaiting)
	open := func(domain.Session) error { return nil }

	first, created, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u1", Name: "Alice"}, open)
	if err != nil || !created {
		t.Fatalf("expected created participant, got created=%v err=%v", created, err)
	}
	again, created, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u1", Name: "Renamed"}, open)
	if err != nil || created {
		t.Fatalf("expected existing participant, got created=%v err=%v", created, err)
	}
	if again.Name != first.Name {
		t.Fatalf("rejoin must not overwrite participant: %+v", again)
	}

	closed := func(domain.Session) error { return domain.ErrNotWaiting }
	if _, _, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u2"}, closed); !errors.Is(err, domain.ErrNotWaiting) {
		t.Fatalf("expected guard error, got %v", err)
	}
}

func TestSessionStoreRecordAnswerExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := newActiveStore(t, domain.StatusActive)
	join(t, store, "u1")

	const attempts = 32
	var wins atomic.Int32
	var conflicts atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.RecordAnswer(ctx, "123456", "q1", "u1", fixedScore(700))
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrAlreadyAnswered):
				conflicts.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 || conflicts.Load() != attempts-1 {
		t.Fatalf("expected 1 win and %d conflicts, got %d/%d", attempts-1, wins.Load(), conflicts.Load())
	}
	participants, _ := store.Participants(ctx, "123456")
	if participants[0].Score != 700 {
		t.Fatalf("expected single increment, score %d", participants[0].Score)
	}
	if n := len(store.UserAnswers("123456", "u1")); n != 1 {
		t.Fatalf("expected one answer in history, got %d", n)
	}
}

func TestSessionStoreConcurrentParticipantsKeepScores(t *testing.T) {
	ctx := context.Background()
	store := newActiveStore(t, domain.StatusActive)
	const players = 20
	for i := 0; i < players; i++ {
		join(t, store, fmt.Sprintf("u%02d", i))
	}

	var wg sync.WaitGroup
	for i := 0; i < players; i++ {
		for _, q := range []string{"q1", "q2", "q3"} {
			wg.Add(1)
			go func(user, question string) {
				defer wg.Done()
				if _, _, err := store.RecordAnswer(ctx, "123456", question, user, fixedScore(100)); err != nil {
					t.Errorf("record %s/%s: %v", user, question, err)
				}
			}(fmt.Sprintf("u%02d", i), q)
		}
	}
	wg.Wait()

	participants, _ := store.Participants(ctx, "123456")
	for _, p := range participants {
		sum := 0
		for _, a := range store.UserAnswers("123456", p.UserID) {
			sum += a.Points.Total
		}
		if p.Score != 300 || p.Score != sum {
			t.Fatalf("participant %s score %d, answers sum %d", p.UserID, p.Score, sum)
		}
	}
}

func TestSessionStoreRecordAnswerPassesPriorNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := newActiveStore(t, domain.StatusActive)
	join(t, store, "u1")

	for _, q := range []string{"q1", "q2"} {
		if _, _, err := store.RecordAnswer(ctx, "123456", q, "u1", fixedScore(10)); err != nil {
			t.Fatalf("record %s: %v", q, err)
		}
	}

	var seen []string
	_, _, err := store.RecordAnswer(ctx, "123456", "q3", "u1", func(_ domain.Session, prior []domain.Answer) (domain.Answer, error) {
		for _, a := range prior {
			seen = append(seen, a.QuestionID)
		}
		return domain.Answer{}, nil
	})
	if err != nil {
		t.Fatalf("record q3: %v", err)
	}
	if len(seen) != 2 || seen[0] != "q2" || seen[1] != "q1" {
		t.Fatalf("expected newest-first prior answers, got %v", seen)
	}
}

func TestSessionStoreRecordAnswerRejectsStrangersAndScorerErrors(t *testing.T) {
	ctx := context.Background()
	store := newActiveStore(t, domain.StatusActive)
	join(t, store, "u1")

	if _, _, err := store.RecordAnswer(ctx, "123456", "q1", "ghost", fixedScore(1)); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}

	failing := func(domain.Session, []domain.Answer) (domain.Answer, error) {
		return domain.Answer{}, domain.ErrNotCurrentQuestion
	}
	if _, _, err := store.RecordAnswer(ctx, "123456", "q1", "u1", failing); !errors.Is(err, domain.ErrNotCurrentQuestion) {
		t.Fatalf("expected scorer error, got %v", err)
	}
	// A rejected scorer must leave the slot free.
	if _, _, err := store.RecordAnswer(ctx, "123456", "q1", "u1", fixedScore(5)); err != nil {
		t.Fatalf("expected slot to remain free, got %v", err)
	}
}

func TestSessionStoreListSessionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, code := range []string{"111111", "222222", "333333"} {
		_ = store.CreateSession(ctx, domain.Session{Code: code, QuizID: "quiz-1", CreatedAt: base.Add(time.Duration(i) * time.Minute)})
	}
	_ = store.CreateSession(ctx, domain.Session{Code: "444444", QuizID: "other"})

	sessions, err := store.ListSessions(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 || sessions[0].Code != "333333" || sessions[2].Code != "111111" {
		t.Fatalf("unexpected order %+v", sessions)
	}
}

func newActiveStore(t *testing.T, status domain.SessionStatus) *SessionStore {
	t.Helper()
	store := NewSessionStore()
	err := store.CreateSession(context.Background(), domain.Session{
		ID:           "s1",
		Code:         "123456",
		QuizID:       "quiz-1",
		Status:       status,
		CurrentIndex: 0,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return store
}

func join(t *testing.T, store *SessionStore, userID string) {
	t.Helper()
	_, _, err := store.AddParticipant(context.Background(), "123456", domain.Participant{UserID: userID, Name: userID, JoinedAt: time.Now()}, func(domain.Session) error { return nil })
	if err != nil {
		t.Fatalf("join %s: %v", userID, err)
	}
}

func fixedScore(points int) func(domain.Session, []domain.Answer) (domain.Answer, error) {
	return func(domain.Session, []domain.Answer) (domain.Answer, error) {
		return domain.Answer{Selection: "A", Correct: true, Points: domain.ScoreBreakdown{Base: points, Total: points}, CreatedAt: time.Now()}, nil
	}
}
