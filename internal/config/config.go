package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Mongo struct {
		URI      string `yaml:"uri"`
		Database string `yaml:"database"`
	} `yaml:"mongo"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Quiz struct {
		// TTL bounds how long quiz content stays cached, in memory or in Redis.
		// "0" disables expiry in both; empty uses the default.
		TTL  string `yaml:"ttl"`
		File string `yaml:"file"`
	} `yaml:"quiz"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret"`
	} `yaml:"auth"`
	Game struct {
		ElapsedPolicy    string `yaml:"elapsedPolicy"`
		CodeAttempts     int    `yaml:"codeAttempts"`
		SubscriberBuffer int    `yaml:"subscriberBuffer"`
	} `yaml:"game"`
}

// Load reads YAML config from path, then applies environment overrides.
// A missing file is not an error when the environment supplies everything.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case os.IsNotExist(err):
	default:
		return cfg, err
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&cfg.Auth.JWTSecret, "JWT_SECRET")
	override(&cfg.Postgres.URL, "POSTGRES_URL")
	override(&cfg.Redis.Addr, "REDIS_ADDR")
	override(&cfg.Redis.Password, "REDIS_PASSWORD")
	override(&cfg.Mongo.URI, "MONGO_URI")
	override(&cfg.AMQP.URL, "AMQP_URL")
	override(&cfg.Quiz.File, "QUIZ_FILE")
	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}

	if cfg.Mongo.Database == "" {
		cfg.Mongo.Database = "quiz"
	}
	if cfg.AMQP.Exchange == "" {
		cfg.AMQP.Exchange = "game.events"
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
