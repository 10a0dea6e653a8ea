package cli

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	mongostore "live-quiz-service/internal/infra/mongo"
	pgstore "live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
)

// NewSeedCmd copies quizzes from a YAML file into the configured databases.
func NewSeedCmd(configPath *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load quizzes from a file into Postgres and/or MongoDB",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if file == "" {
				file = cfg.Quiz.File
			}
			if file == "" {
				return errors.New("no quiz file: pass --file or set quiz.file")
			}
			loader, err := memory.LoadQuizFile(file)
			if err != nil {
				return err
			}

			// Only the databases and the cache are needed here.
			cfg.Quiz.File = ""
			cfg.AMQP.URL = ""
			if cfg.Postgres.URL != "" {
				if err := runMigrationsWithConfig(ctx, cfg); err != nil {
					return err
				}
			}
			b, err := connectBackends(ctx, cfg)
			if err != nil {
				return err
			}
			defer b.Close()

			var targets []quizSaver
			if b.pool != nil {
				targets = append(targets, pgstore.NewQuizLoader(b.pool))
			}
			if b.mongo != nil {
				targets = append(targets, mongostore.NewQuizLoader(b.mongo.Database(cfg.Mongo.Database)))
			}
			if len(targets) == 0 {
				return errors.New("nothing to seed: configure postgres.url or mongo.uri")
			}

			// Running servers sharing this Redis must not keep serving stale content.
			var cache *redisstore.QuizRepository
			if b.redis != nil {
				cache = redisstore.NewQuizRepository(b.redis, nil, 0)
			}

			for _, quiz := range loader.Quizzes() {
				if err := app.ValidateQuiz(quiz); err != nil {
					return err
				}
				for _, target := range targets {
					if err := target.SaveQuiz(ctx, quiz); err != nil {
						return fmt.Errorf("seed %s: %w", quiz.ID, err)
					}
				}
				if cache != nil {
					if err := cache.Invalidate(ctx, quiz.ID); err != nil {
						log.Printf("invalidate cached quiz %s: %v", quiz.ID, err)
					}
				}
				log.Printf("seeded quiz %s (%d questions)", quiz.ID, len(quiz.Questions))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "quiz YAML file (defaults to quiz.file)")
	return cmd
}

type quizSaver interface {
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}
