package app

import (
	"errors"
	"strings"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestRankOrdersByScoreThenJoinTime(t *testing.T) {
	t0 := time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)
	participants := []domain.Participant{
		{UserID: "late", Name: "Late", Score: 900, JoinedAt: t0.Add(3 * time.Second)},
		{UserID: "b", Name: "B", Score: 900, JoinedAt: t0.Add(time.Second)},
		{UserID: "a", Name: "A", Score: 900, JoinedAt: t0.Add(time.Second)},
		{UserID: "top", Name: "Top", Score: 1400, JoinedAt: t0.Add(5 * time.Second)},
		{UserID: "zero", Name: "Zero", JoinedAt: t0},
	}

	got := Rank(participants)

	want := []string{"top", "a", "b", "late", "zero"}
	for i, id := range want {
		if got[i].UserID != id || got[i].Rank != i+1 {
			t.Fatalf("position %d: expected %s rank %d, got %+v", i, id, i+1, got[i])
		}
	}
	if participants[0].UserID != "late" {
		t.Fatalf("Rank must not reorder its input")
	}
}

func TestRankEmpty(t *testing.T) {
	if got := Rank(nil); len(got) != 0 {
		t.Fatalf("expected empty leaderboard, got %v", got)
	}
}

func TestValidateQuiz(t *testing.T) {
	valid := domain.Quiz{
		ID:     "q",
		HostID: "h",
		Questions: []domain.Question{{
			ID: "1", Text: "?", Correct: "A", TimeLimit: 10,
			Options: []domain.Option{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}},
		}},
	}
	if err := ValidateQuiz(valid); err != nil {
		t.Fatalf("valid quiz rejected: %v", err)
	}

	cases := map[string]func(q *domain.Question){
		"zero time limit":   func(q *domain.Question) { q.TimeLimit = 0 },
		"one option":        func(q *domain.Question) { q.Options = q.Options[:1] },
		"bad label":         func(q *domain.Question) { q.Options[1].Label = "E" },
		"duplicate label":   func(q *domain.Question) { q.Options[1].Label = "A" },
		"correct not given": func(q *domain.Question) { q.Correct = "C" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			quiz := valid
			question := valid.Questions[0]
			question.Options = append([]domain.Option(nil), question.Options...)
			mutate(&question)
			quiz.Questions = []domain.Question{question}
			if err := ValidateQuiz(quiz); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateQuizRejectsRepeatedQuestionIDs(t *testing.T) {
	question := domain.Question{
		ID: "1", Text: "?", Correct: "A", TimeLimit: 10,
		Options: []domain.Option{{Label: "A", Text: "x"}, {Label: "B", Text: "y"}},
	}
	second := question
	second.Order = 1
	second.Text = "again?"
	quiz := domain.Quiz{ID: "q", HostID: "h", Questions: []domain.Question{question, second}}

	err := ValidateQuiz(quiz)
	if !errors.Is(err, domain.ErrValidation) || !strings.Contains(err.Error(), "repeats question id 1") {
		t.Fatalf("expected repeated question id to be rejected, got %v", err)
	}
}
