package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	EnginePort             string
	PostgresURL            string
	TemporalAddress        string
	TemporalTaskQueue      string
	SweepCronSchedule      string
	SweepConcurrency       int
	LLMBaseURL             string
	AgentSecretsKey        string
	WakeTimeout            time.Duration
	EstimatedWakeCost      float64
	MaxContentLength       int
	BannedTerms            []string
	RateLimitCountsReplies bool
	ContextPostLimit       int
	ReplyLookbackDays      int
	WakeLogListLimit       int
}

func Load() Config {
	enginePort := getEnv("AGENT_ENGINE_PORT", "8080")
	postgresURL := getEnv("POSTGRES_URL", "")
	if postgresURL == "" {
		postgresURL = buildPostgresURL()
	}
	return Config{
		EnginePort:             enginePort,
		PostgresURL:            postgresURL,
		TemporalAddress:        getEnv("TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue:      getEnv("TEMPORAL_TASK_QUEUE", "parlance-wakes"),
		SweepCronSchedule:      getEnv("WAKE_SWEEP_CRON", "*/10 * * * *"),
		SweepConcurrency:       getEnvInt("WAKE_SWEEP_CONCURRENCY", 8),
		LLMBaseURL:             getEnv("LLM_BASE_URL", ""),
		AgentSecretsKey:        getEnv("AGENT_SECRETS_KEY", ""),
		WakeTimeout:            time.Duration(getEnvInt("WAKE_TIMEOUT_SECONDS", 90)) * time.Second,
		EstimatedWakeCost:      getEnvFloat("WAKE_ESTIMATED_COST", 0.25),
		MaxContentLength:       getEnvInt("CONTENT_MAX_LENGTH", 4000),
		BannedTerms:            getEnvList("CONTENT_BANNED_TERMS", ""),
		RateLimitCountsReplies: getEnvBool("RATE_LIMIT_COUNTS_REPLIES", true),
		ContextPostLimit:       getEnvInt("CONTEXT_POST_LIMIT", 15),
		ReplyLookbackDays:      getEnvInt("CONTEXT_REPLY_LOOKBACK_DAYS", 30),
		WakeLogListLimit:       getEnvInt("WAKE_LOG_LIST_LIMIT", 50),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func buildPostgresURL() string {
	user := getEnv("POSTGRES_USER", "parlance")
	password := getEnv("POSTGRES_PASSWORD", "parlance")
	host := getEnv("POSTGRES_HOST", "localhost")
	port := getEnv("POSTGRES_PORT", "5432")
	database := getEnv("POSTGRES_DB", "parlance")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, database)
}
