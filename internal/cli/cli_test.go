package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	transport "live-quiz-service/internal/transport/http"
)

func TestBackendsFallBackToMemory(t *testing.T) {
	b, err := connectBackends(context.Background(), config.Config{})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer b.Close()

	loader, source, err := b.quizLoader()
	if err != nil || source != "built-in demo" {
		t.Fatalf("unexpected loader %q: %v", source, err)
	}
	if _, err := loader.LoadQuiz(context.Background(), "demo"); err != nil {
		t.Fatalf("demo quiz: %v", err)
	}
	if _, name := b.sessionStore(); name != "memory" {
		t.Fatalf("expected memory store, got %s", name)
	}
	if _, name := b.broadcaster(); name != "memory" {
		t.Fatalf("expected memory broadcaster, got %s", name)
	}
}

func TestDemoQuizzesAreValid(t *testing.T) {
	for id, quiz := range demoQuizzes() {
		if err := app.ValidateQuiz(quiz); err != nil {
			t.Fatalf("demo quiz %s: %v", id, err)
		}
	}
}

func TestGameServiceRejectsUnknownElapsedPolicy(t *testing.T) {
	b := &backends{}
	service, err := b.gameService(nil, nil, nil)
	if err != nil || service == nil {
		t.Fatalf("game service: %v", err)
	}
	b.cfg.Game.ElapsedPolicy = "sundial"
	if _, err := b.gameService(nil, nil, nil); err == nil {
		t.Fatalf("expected unknown elapsed policy to be rejected")
	}
}

func TestQuizFileIsValidatedOnLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.yaml")
	doc := `quizzes:
  - id: broken
    hostId: host
    questions:
      - id: q1
        text: Pick one
        options:
          - {label: A, text: yes}
          - {label: B, text: no}
        correct: C
        timeLimit: 10
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	b := &backends{}
	b.cfg.Quiz.File = path
	if _, _, err := b.quizLoader(); err == nil || !strings.Contains(err.Error(), "missing option C") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestTokenCommandIssuesVerifiableToken(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	configPath := filepath.Join(t.TempDir(), "absent.yaml")

	var out bytes.Buffer
	cmd := NewTokenCmd(&configPath)
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--user", "u1", "--name", "Alice"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("token: %v", err)
	}

	id, err := transport.NewIdentityProvider("cli-secret").Verify(strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id != (domain.Identity{UserID: "u1", Name: "Alice"}) {
		t.Fatalf("unexpected identity %+v", id)
	}
}
