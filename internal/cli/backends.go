package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	mongostore "live-quiz-service/internal/infra/mongo"
	pgstore "live-quiz-service/internal/infra/postgres"
	"live-quiz-service/internal/infra/rabbitmq"
	redisstore "live-quiz-service/internal/infra/redis"
)

const defaultSubscriberBuffer = 64

// backends holds the optional external connections named in config.
// Every field may be nil; the in-memory implementations fill the gaps.
type backends struct {
	redis *redis.Client
	pool  *pgxpool.Pool
	mongo *mongo.Client
	amqp  *rabbitmq.Broadcaster
	cfg   config.Config
}

func connectBackends(ctx context.Context, cfg config.Config) (*backends, error) {
	b := &backends{cfg: cfg}

	if cfg.Redis.Addr != "" {
		b.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("postgres connect: %w", err)
		}
		b.pool = pool
	}

	if cfg.Mongo.URI != "" {
		client, err := mongostore.Connect(ctx, cfg.Mongo.URI)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.mongo = client
	}

	if cfg.AMQP.URL != "" {
		broadcaster, err := rabbitmq.Dial(cfg.AMQP.URL, cfg.AMQP.Exchange, b.subscriberBuffer())
		if err != nil {
			b.Close()
			return nil, err
		}
		b.amqp = broadcaster
	}
	return b, nil
}

func (b *backends) Close() {
	if b.amqp != nil {
		if err := b.amqp.Close(); err != nil {
			log.Printf("amqp close: %v", err)
		}
	}
	if b.mongo != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.mongo.Disconnect(ctx); err != nil {
			log.Printf("mongo disconnect: %v", err)
		}
	}
	if b.pool != nil {
		b.pool.Close()
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Printf("redis close: %v", err)
		}
	}
}

func (b *backends) subscriberBuffer() int {
	if b.cfg.Game.SubscriberBuffer > 0 {
		return b.cfg.Game.SubscriberBuffer
	}
	return defaultSubscriberBuffer
}

// quizLoader picks the quiz source: a quiz file wins, then MongoDB, then
// Postgres, then the built-in demo quiz.
func (b *backends) quizLoader() (memory.QuizLoader, string, error) {
	switch {
	case b.cfg.Quiz.File != "":
		loader, err := memory.LoadQuizFile(b.cfg.Quiz.File)
		if err != nil {
			return nil, "", err
		}
		for _, quiz := range loader.Quizzes() {
			if err := app.ValidateQuiz(quiz); err != nil {
				return nil, "", err
			}
		}
		return loader, "file " + b.cfg.Quiz.File, nil
	case b.mongo != nil:
		return mongostore.NewQuizLoader(b.mongo.Database(b.cfg.Mongo.Database)), "mongo", nil
	case b.pool != nil:
		return pgstore.NewQuizLoader(b.pool), "postgres", nil
	default:
		return memory.NewStaticQuizLoader(demoQuizzes()), "built-in demo", nil
	}
}

func (b *backends) quizRepository(loader memory.QuizLoader) app.QuizRepository {
	ttl := config.TTLDuration(b.cfg.Quiz.TTL, 10*time.Minute)
	if b.redis != nil {
		return redisstore.NewQuizRepository(b.redis, loader, ttl)
	}
	return memory.NewQuizRepository(loader, ttl)
}

// sessionStore prefers Postgres for durable history, then Redis.
func (b *backends) sessionStore() (app.SessionRepository, string) {
	switch {
	case b.pool != nil:
		return pgstore.NewSessionStore(b.pool), "postgres"
	case b.redis != nil:
		return redisstore.NewSessionStore(b.redis, config.TTLDuration(b.cfg.Redis.TTL, 6*time.Hour)), "redis"
	default:
		return memory.NewSessionStore(), "memory"
	}
}

func (b *backends) broadcaster() (app.Broadcaster, string) {
	switch {
	case b.amqp != nil:
		return b.amqp, "amqp"
	case b.redis != nil:
		return redisstore.NewBroadcaster(b.redis, b.subscriberBuffer()), "redis"
	default:
		return memory.NewBroadcaster(b.subscriberBuffer()), "memory"
	}
}

func (b *backends) gameService(quizzes app.QuizRepository, store app.SessionRepository, events app.Broadcaster) (*app.GameService, error) {
	policy := app.ElapsedPolicy(b.cfg.Game.ElapsedPolicy)
	switch policy {
	case "", app.ElapsedClient, app.ElapsedServer:
	default:
		return nil, fmt.Errorf("unknown game.elapsedPolicy %q", policy)
	}
	return app.NewGameService(store, quizzes, events,
		app.WithElapsedPolicy(policy),
		app.WithCodeAttempts(b.cfg.Game.CodeAttempts),
	), nil
}

// demoQuizzes is served when no quiz source is configured.
func demoQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"demo": {
			ID:     "demo",
			Title:  "Warm-up",
			HostID: "host",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{Label: "A", Text: "3"},
						{Label: "B", Text: "4"},
						{Label: "C", Text: "5"},
					},
					Correct:   "B",
					TimeLimit: 20,
				},
				{
					ID:    "q2",
					Order: 1,
					Text:  "Which planet is closest to the sun?",
					Options: []domain.Option{
						{Label: "A", Text: "Venus"},
						{Label: "B", Text: "Mercury"},
						{Label: "C", Text: "Mars"},
						{Label: "D", Text: "Earth"},
					},
					Correct:   "B",
					TimeLimit: 15,
				},
			},
		},
	}
}
