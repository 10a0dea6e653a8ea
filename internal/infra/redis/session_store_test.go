package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
)

func TestSessionStoreSetsKeysWithTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Minute)
	ctx := context.Background()

	session := domain.Session{ID: "s1", Code: "123456", QuizID: "quiz-1", Status: domain.StatusWaiting, CurrentIndex: -1}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("create: %v", err)
	}
	if !mr.Exists("quiz:session:123456") {
		t.Fatalf("expected redis key to be set")
	}
	if ttl := mr.TTL("quiz:session:123456"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}
	if err := store.CreateSession(ctx, session); !errors.Is(err, domain.ErrCodeTaken) {
		t.Fatalf("expected code taken, got %v", err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := store.GetSession(ctx, "123456"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
	sessions, err := store.ListSessions(ctx, "quiz-1")
	if err != nil || len(sessions) != 0 {
		t.Fatalf("expired session listed: %v %v", sessions, err)
	}
}

func TestSessionStoreUpdateRollsBackOnError(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), 0)
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.Session{Code: "123456", QuizID: "quiz-1", Status: domain.StatusWaiting})

	_, err := store.UpdateSession(ctx, "123456", func(s *domain.Session) error {
		s.Status = domain.StatusEnded
		return domain.ErrNotActive
	})
	if !errors.Is(err, domain.ErrNotActive) {
		t.Fatalf("expected mutate error, got %v", err)
	}
	got, _ := store.GetSession(ctx, "123456")
	if got.Status != domain.StatusWaiting {
		t.Fatalf("failed mutation was written: %+v", got)
	}

	got, err = store.UpdateSession(ctx, "123456", func(s *domain.Session) error {
		s.Status = domain.StatusActive
		s.CurrentIndex = 0
		return nil
	})
	if err != nil || got.Status != domain.StatusActive {
		t.Fatalf("update: %+v %v", got, err)
	}
	if _, err := store.UpdateSession(ctx, "000000", func(*domain.Session) error { return nil }); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionStoreParticipantsAndAnswers(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), time.Hour)
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.Session{Code: "123456", QuizID: "quiz-1", Status: domain.StatusActive})
	open := func(domain.Session) error { return nil }
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	if _, created, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u2", Name: "Bob", JoinedAt: t0.Add(time.Second)}, open); err != nil || !created {
		t.Fatalf("add u2: %v", err)
	}
	if _, created, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u1", Name: "Alice", JoinedAt: t0}, open); err != nil || !created {
		t.Fatalf("add u1: %v", err)
	}
	again, created, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u1", Name: "Other"}, open)
	if err != nil || created || again.Name != "Alice" {
		t.Fatalf("rejoin should return stored participant: %+v created=%v err=%v", again, created, err)
	}
	if _, _, err := store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u3"}, func(domain.Session) error { return domain.ErrNotWaiting }); !errors.Is(err, domain.ErrNotWaiting) {
		t.Fatalf("expected guard error, got %v", err)
	}

	for _, q := range []string{"q1", "q2"} {
		if _, _, err := store.RecordAnswer(ctx, "123456", q, "u1", scoreOf(200, true)); err != nil {
			t.Fatalf("record %s: %v", q, err)
		}
	}
	var prior []domain.Answer
	_, total, err := store.RecordAnswer(ctx, "123456", "q3", "u1", func(_ domain.Session, p []domain.Answer) (domain.Answer, error) {
		prior = p
		return domain.Answer{Selection: "A", Points: domain.ScoreBreakdown{Total: 50}, CreatedAt: time.Now()}, nil
	})
	if err != nil {
		t.Fatalf("record q3: %v", err)
	}
	if total != 450 {
		t.Fatalf("expected total 450, got %d", total)
	}
	if len(prior) != 2 || prior[0].QuestionID != "q2" || prior[1].QuestionID != "q1" {
		t.Fatalf("expected newest-first history, got %+v", prior)
	}

	if _, _, err := store.RecordAnswer(ctx, "123456", "q1", "u1", scoreOf(200, true)); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already answered, got %v", err)
	}
	if _, _, err := store.RecordAnswer(ctx, "123456", "q1", "ghost", scoreOf(200, true)); !errors.Is(err, domain.ErrNotParticipant) {
		t.Fatalf("expected not participant, got %v", err)
	}

	participants, err := store.Participants(ctx, "123456")
	if err != nil {
		t.Fatalf("participants: %v", err)
	}
	if len(participants) != 2 || participants[0].UserID != "u1" || participants[0].Score != 450 {
		t.Fatalf("unexpected participants %+v", participants)
	}
	answers, err := store.QuestionAnswers(ctx, "123456", "q1")
	if err != nil || len(answers) != 1 || answers[0].UserID != "u1" {
		t.Fatalf("unexpected q1 answers %+v %v", answers, err)
	}
}

func TestSessionStoreRecordAnswerExactlyOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	store := NewSessionStore(newClient(mr), 0)
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.Session{Code: "123456", QuizID: "quiz-1", Status: domain.StatusActive})
	_, _, _ = store.AddParticipant(ctx, "123456", domain.Participant{UserID: "u1"}, func(domain.Session) error { return nil })

	const attempts = 10
	var (
		mu        sync.Mutex
		wins      int
		conflicts int
		wg        sync.WaitGroup
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := store.RecordAnswer(ctx, "123456", "q1", "u1", scoreOf(300, true))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, domain.ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != attempts-1 {
		t.Fatalf("expected one win, got %d wins / %d conflicts", wins, conflicts)
	}
	participants, _ := store.Participants(ctx, "123456")
	if participants[0].Score != 300 {
		t.Fatalf("score incremented more than once: %d", participants[0].Score)
	}
}

func TestGameServiceOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(mr)
	ctx := context.Background()
	quizzes := NewQuizRepository(client, memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)
	service := app.NewGameService(NewSessionStore(client, time.Hour), quizzes, NewBroadcaster(client, 8))

	host := domain.Identity{UserID: "host"}
	player := domain.Identity{UserID: "p1", Name: "Pat"}

	session, err := service.Launch(ctx, host, "quiz-1")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if _, err := service.Join(ctx, player, session.Code); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.Start(ctx, host, session.Code); err != nil {
		t.Fatalf("start: %v", err)
	}
	result, err := service.SubmitAnswer(ctx, player, session.Code, domain.AnswerSubmission{QuestionID: "q1", Selection: "B", Elapsed: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Total != 875 {
		t.Fatalf("expected 875 points, got %+v", result)
	}
	if _, err := service.Advance(ctx, host, session.Code); err != nil {
		t.Fatalf("advance: %v", err)
	}
	progress, err := service.Advance(ctx, host, session.Code)
	if err != nil || !progress.Ended {
		t.Fatalf("expected game to end: %+v %v", progress, err)
	}
	if progress.Leaderboard[0].Score != 875 {
		t.Fatalf("unexpected leaderboard %+v", progress.Leaderboard)
	}
}

func TestSessionStoreReportsContentionAsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(mr)
	store := NewSessionStore(client, 0)
	ctx := context.Background()
	_ = store.CreateSession(ctx, domain.Session{Code: "123456", QuizID: "quiz-1", Status: domain.StatusWaiting})

	attempts := 0
	_, err := store.UpdateSession(ctx, "123456", func(s *domain.Session) error {
		attempts++
		// Another writer touches the watched key on every attempt.
		if err := client.Set(ctx, sessionKey("123456"), "{}", 0).Err(); err != nil {
			return err
		}
		s.Status = domain.StatusActive
		return nil
	})
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrConflict) {
		t.Fatalf("contention must not read as a conflict: %v", err)
	}
	if attempts != maxTxRetries {
		t.Fatalf("expected %d attempts, got %d", maxTxRetries, attempts)
	}
}

func TestReseededQuizDoesNotReachRunningSessionOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(mr)
	ctx := context.Background()
	content := map[string]domain.Quiz{"quiz-1": sampleQuiz()}
	quizzes := NewQuizRepository(client, memory.NewStaticQuizLoader(content), time.Minute)
	service := app.NewGameService(NewSessionStore(client, time.Hour), quizzes, NewBroadcaster(client, 8))
	host := domain.Identity{UserID: "host"}

	session, err := service.Launch(ctx, host, "quiz-1")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	if _, err := service.Start(ctx, host, session.Code); err != nil {
		t.Fatalf("start: %v", err)
	}

	shorter := sampleQuiz()
	shorter.Questions = shorter.Questions[:1]
	content["quiz-1"] = shorter
	if err := quizzes.Invalidate(ctx, "quiz-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}

	progress, err := service.Advance(ctx, host, session.Code)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if progress.Ended || progress.Index != 1 || progress.Total != 2 {
		t.Fatalf("session should keep its launched questions, got %+v", progress)
	}
	stored, err := NewSessionStore(client, time.Hour).GetSession(ctx, session.Code)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(stored.Quiz.Questions) != 2 {
		t.Fatalf("frozen quiz not persisted: %+v", stored.Quiz)
	}
}

func TestConcurrentAdvanceAndStartOnRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := newClient(mr)
	ctx := context.Background()
	quizzes := NewQuizRepository(client, memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)
	events := memory.NewBroadcaster(64)
	service := app.NewGameService(NewSessionStore(client, time.Hour), quizzes, events)
	host := domain.Identity{UserID: "host"}

	session, err := service.Launch(ctx, host, "quiz-1")
	if err != nil {
		t.Fatalf("launch: %v", err)
	}
	stream, cancel, err := service.Subscribe(ctx, session.Code)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	const callers = 8
	var (
		mu                         sync.Mutex
		started, notWaiting, moved int
		ended, rejected            int
		wg                         sync.WaitGroup
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Start(ctx, host, session.Code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				started++
			case errors.Is(err, domain.ErrNotWaiting):
				notWaiting++
			default:
				t.Errorf("start: %v", err)
			}
		}()
	}
	wg.Wait()
	if started != 1 || notWaiting != callers-1 {
		t.Fatalf("expected one start, got %d starts / %d rejections", started, notWaiting)
	}

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			progress, err := service.Advance(ctx, host, session.Code)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrInvalidState):
				rejected++
			case err != nil:
				t.Errorf("advance: %v", err)
			case progress.Ended:
				ended++
			case progress.Index == 1:
				moved++
			default:
				t.Errorf("unexpected progress %+v", progress)
			}
		}()
	}
	wg.Wait()
	if moved != 1 || ended != 1 || rejected != callers-2 {
		t.Fatalf("expected one move, one end and %d rejections, got %d/%d/%d", callers-2, moved, ended, rejected)
	}

	counts := map[string]int{}
	for drained := false; !drained; {
		select {
		case ev := <-stream:
			counts[ev.EventName()]++
		default:
			drained = true
		}
	}
	if counts[domain.EventGameStarted] != 1 || counts[domain.EventGameEnded] != 1 || counts[domain.EventNewQuestion] != 2 {
		t.Fatalf("unexpected events %v", counts)
	}
}

func scoreOf(points int, correct bool) app.AnswerScorer {
	return func(domain.Session, []domain.Answer) (domain.Answer, error) {
		return domain.Answer{Selection: "A", Correct: correct, Points: domain.ScoreBreakdown{Total: points}, CreatedAt: time.Now()}, nil
	}
}
