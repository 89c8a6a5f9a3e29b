package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port        string   `yaml:"port"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Mode string `yaml:"mode"`
	} `yaml:"log"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Channel  string `yaml:"channel"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Audit struct {
		// Driver is memory, postgres or sqlite.
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	} `yaml:"audit"`
	AMQP struct {
		URL      string `yaml:"url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"amqp"`
	Auth struct {
		Secret   string `yaml:"secret"`
		TokenTTL string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Quiz      Quiz      `yaml:"quiz"`
	Simulator Simulator `yaml:"simulator"`
}

type Quiz struct {
	QuestionCap   int    `yaml:"question_cap"`
	QuestionTimer string `yaml:"question_timer"`
	Countdown     string `yaml:"countdown"`
	BankID        string `yaml:"bank_id"`
	BankFile      string `yaml:"bank_file"`
	BankTTL       string `yaml:"bank_ttl"`
	Theta         struct {
		Initial  float64 `yaml:"initial"`
		Min      float64 `yaml:"min"`
		Max      float64 `yaml:"max"`
		BaseStep float64 `yaml:"base_step"`
		MaxStep  float64 `yaml:"max_step"`
	} `yaml:"theta"`
	Thresholds struct {
		Medio    float64 `yaml:"medio"`
		Avanzato float64 `yaml:"avanzato"`
	} `yaml:"thresholds"`
}

type Simulator struct {
	HintBudget    int    `yaml:"hint_budget"`
	HintPenalties []int  `yaml:"hint_penalties"`
	SkipPolicy    string `yaml:"skip_policy"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	cfg := Config{}
	cfg.Server.Port = "8080"
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Log.Mode = "development"
	cfg.Redis.TTL = "2h"
	cfg.Redis.Channel = "quiz:events"
	cfg.Audit.Driver = "memory"
	cfg.AMQP.Exchange = "quiz.audit"
	cfg.Auth.TokenTTL = "12h"

	cfg.Quiz.QuestionCap = 50
	cfg.Quiz.QuestionTimer = "30s"
	cfg.Quiz.Countdown = "5s"
	cfg.Quiz.BankID = "default"
	cfg.Quiz.BankTTL = "10m"
	cfg.Quiz.Theta.Min = -3
	cfg.Quiz.Theta.Max = 6
	cfg.Quiz.Theta.BaseStep = 0.3
	cfg.Quiz.Theta.MaxStep = 0.8
	cfg.Quiz.Thresholds.Medio = 1.0
	cfg.Quiz.Thresholds.Avanzato = 2.0

	cfg.Simulator.HintBudget = 5
	cfg.Simulator.HintPenalties = []int{2, 5, 10}
	cfg.Simulator.SkipPolicy = "none"
	return cfg
}

// Load reads YAML config from path on top of the defaults, then applies environment overrides.
// A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	applyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set("PORT", &cfg.Server.Port)
	set("LOG_MODE", &cfg.Log.Mode)
	set("REDIS_ADDR", &cfg.Redis.Addr)
	set("POSTGRES_URL", &cfg.Postgres.URL)
	set("AUDIT_DRIVER", &cfg.Audit.Driver)
	set("AUDIT_DSN", &cfg.Audit.DSN)
	set("AMQP_URL", &cfg.AMQP.URL)
	set("AUTH_SECRET", &cfg.Auth.Secret)
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
