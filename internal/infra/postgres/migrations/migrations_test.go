package migrations

import (
	"strings"
	"testing"
)

func TestMigrationsRegistered(t *testing.T) {
	sorted := Migrations.Sorted()
	if len(sorted) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(sorted))
	}
	if sorted[0].Name != "2024112201" || sorted[1].Name != "2024120101" {
		t.Fatalf("unexpected migration order: %s, %s", sorted[0].Name, sorted[1].Name)
	}
}

func TestSchemaScriptsEmbedded(t *testing.T) {
	if !strings.Contains(createQuizzesSQL, "CREATE TABLE IF NOT EXISTS quizzes") {
		t.Fatalf("quizzes schema not embedded")
	}
	for _, table := range []string{"game_sessions", "participants", "answers"} {
		if !strings.Contains(createGameSessionsSQL, "CREATE TABLE IF NOT EXISTS "+table) {
			t.Fatalf("%s schema not embedded", table)
		}
	}
	if !strings.Contains(createGameSessionsSQL, "quiz                JSONB NOT NULL") {
		t.Fatalf("game_sessions must keep the launched quiz content")
	}
	if n := strings.Count(createGameSessionsSQL, "--bun:split"); n != 3 {
		t.Fatalf("expected 3 split markers, got %d", n)
	}
}
