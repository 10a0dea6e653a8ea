package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_create_game_sessions.sql
var createGameSessionsSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execScript(ctx, db, createGameSessionsSQL)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execScript(ctx, db, `
				DROP TABLE IF EXISTS answers
				--bun:split
				DROP TABLE IF EXISTS participants
				--bun:split
				DROP TABLE IF EXISTS game_sessions`)
		},
	)
}
