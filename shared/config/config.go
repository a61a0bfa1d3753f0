package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Config struct {
	Env               string
	ServiceName       string
	HTTPPort          int
	LogLevel          string
	ConfigPath        string
	RequestTimeoutMS  int
	RequestTimeout    time.Duration
	DatabaseURL       string
	DBMaxConns        int
	DBMinConns        int
	DBConnMaxIdleSec  int
	DBConnMaxLifeSec  int
	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	UnreadCacheTTLSec int
	AsynqRedisAddr    string
	AsynqRedisPass    string
	AsynqRedisDB      int
	AsynqQueue        string
	AsynqConcurrency  int
	JobMaxRetry       int
	JobTimeoutSec     int
	KafkaBrokers      []string
	KafkaClientID     string
	KafkaRetryMax     int
	KafkaWriteMS      int
	OtelEnabled       bool
	OtelEndpoint      string
	OtelInsecure      bool
	OtelSampleRatio   float64
}

func Load(serviceNameDefault string, httpPortDefault int) (Config, []Problem) {
	envRaw := strings.TrimSpace(os.Getenv("ENV"))
	cfg := Config{
		Env:               envRaw,
		ServiceName:       serviceNameDefault,
		HTTPPort:          httpPortDefault,
		LogLevel:          "info",
		ConfigPath:        strings.TrimSpace(os.Getenv("CONFIG_PATH")),
		RequestTimeoutMS:  30000,
		DBMaxConns:        10,
		DBMinConns:        1,
		DBConnMaxIdleSec:  300,
		DBConnMaxLifeSec:  1800,
		UnreadCacheTTLSec: 60,
		AsynqQueue:        "default",
		AsynqConcurrency:  10,
		JobMaxRetry:       25,
		JobTimeoutSec:     30,
		KafkaRetryMax:     5,
		KafkaWriteMS:      5000,
		OtelInsecure:      true,
		OtelSampleRatio:   1.0,
	}

	problems := make([]Problem, 0, 4)
	envProvided := envRaw != ""

	if repoRoot, ok := findRepoRoot(); ok && cfg.Env != "" && cfg.ConfigPath == "" {
		cfg.ConfigPath = filepath.Join(repoRoot, "configs", cfg.Env+".json")
	}

	if fileData, fileProblems, ok := loadConfigFile(cfg.ConfigPath, strings.TrimSpace(os.Getenv("CONFIG_PATH")) != ""); ok {
		problems = append(problems, fileProblems...)
		if fileEnv, ok := readStringKey(fileData, "ENV"); ok && strings.TrimSpace(fileEnv) != "" {
			envProvided = true
		}
		applyConfigMap(&cfg, fileData, &problems)
	} else {
		problems = append(problems, fileProblems...)
	}

	applyEnv(&cfg, &problems)

	if cfg.Env == "" {
		cfg.Env = "dev"
	}
	if !envProvided {
		problems = append(problems, Problem{Field: "ENV", Message: "ENV is required"})
	}
	validate(&cfg, httpPortDefault, &problems)

	return cfg, problems
}

func validate(cfg *Config, httpPortDefault int, problems *[]Problem) {
	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		*problems = append(*problems, Problem{Field: "HTTP_PORT", Message: "HTTP_PORT must be 1-65535"})
		cfg.HTTPPort = httpPortDefault
	}
	if cfg.RequestTimeoutMS <= 0 {
		*problems = append(*problems, Problem{Field: "REQUEST_TIMEOUT_MS", Message: "REQUEST_TIMEOUT_MS must be > 0"})
		cfg.RequestTimeoutMS = 30000
	}
	cfg.RequestTimeout = time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.DBMaxConns <= 0 {
		*problems = append(*problems, Problem{Field: "DB_MAX_CONNS", Message: "DB_MAX_CONNS must be > 0"})
		cfg.DBMaxConns = 10
	}
	if cfg.DBMinConns < 0 {
		*problems = append(*problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be >= 0"})
		cfg.DBMinConns = 1
	}
	if cfg.DBMinConns > cfg.DBMaxConns {
		*problems = append(*problems, Problem{Field: "DB_MIN_CONNS", Message: "DB_MIN_CONNS must be <= DB_MAX_CONNS"})
		cfg.DBMinConns = cfg.DBMaxConns
	}
	if cfg.DBConnMaxIdleSec <= 0 {
		*problems = append(*problems, Problem{Field: "DB_CONN_MAX_IDLE_SECONDS", Message: "DB_CONN_MAX_IDLE_SECONDS must be > 0"})
		cfg.DBConnMaxIdleSec = 300
	}
	if cfg.DBConnMaxLifeSec <= 0 {
		*problems = append(*problems, Problem{Field: "DB_CONN_MAX_LIFETIME_SECONDS", Message: "DB_CONN_MAX_LIFETIME_SECONDS must be > 0"})
		cfg.DBConnMaxLifeSec = 1800
	}
	if cfg.RedisDB < 0 {
		*problems = append(*problems, Problem{Field: "REDIS_DB", Message: "REDIS_DB must be >= 0"})
		cfg.RedisDB = 0
	}
	if cfg.UnreadCacheTTLSec <= 0 {
		*problems = append(*problems, Problem{Field: "UNREAD_CACHE_TTL_SECONDS", Message: "UNREAD_CACHE_TTL_SECONDS must be > 0"})
		cfg.UnreadCacheTTLSec = 60
	}
	if cfg.AsynqRedisDB < 0 {
		*problems = append(*problems, Problem{Field: "ASYNQ_REDIS_DB", Message: "ASYNQ_REDIS_DB must be >= 0"})
		cfg.AsynqRedisDB = 0
	}
	if strings.TrimSpace(cfg.AsynqQueue) == "" {
		*problems = append(*problems, Problem{Field: "ASYNQ_QUEUE", Message: "ASYNQ_QUEUE must not be empty"})
		cfg.AsynqQueue = "default"
	}
	if cfg.AsynqConcurrency <= 0 {
		*problems = append(*problems, Problem{Field: "ASYNQ_CONCURRENCY", Message: "ASYNQ_CONCURRENCY must be > 0"})
		cfg.AsynqConcurrency = 10
	}
	if cfg.JobMaxRetry < 0 {
		*problems = append(*problems, Problem{Field: "JOB_MAX_RETRY", Message: "JOB_MAX_RETRY must be >= 0"})
		cfg.JobMaxRetry = 25
	}
	if cfg.JobTimeoutSec <= 0 {
		*problems = append(*problems, Problem{Field: "JOB_TIMEOUT_SECONDS", Message: "JOB_TIMEOUT_SECONDS must be > 0"})
		cfg.JobTimeoutSec = 30
	}
	if cfg.KafkaRetryMax < 0 {
		*problems = append(*problems, Problem{Field: "KAFKA_RETRY_MAX", Message: "KAFKA_RETRY_MAX must be >= 0"})
		cfg.KafkaRetryMax = 5
	}
	if cfg.KafkaWriteMS <= 0 {
		*problems = append(*problems, Problem{Field: "KAFKA_WRITE_TIMEOUT_MS", Message: "KAFKA_WRITE_TIMEOUT_MS must be > 0"})
		cfg.KafkaWriteMS = 5000
	}
	if cfg.OtelSampleRatio < 0 || cfg.OtelSampleRatio > 1 {
		*problems = append(*problems, Problem{Field: "OTEL_SAMPLE_RATIO", Message: "OTEL_SAMPLE_RATIO must be 0-1"})
		cfg.OtelSampleRatio = 1.0
	}
}

// UnreadCacheTTL and JobTimeout convert the second-based settings for callers.
func (c Config) UnreadCacheTTL() time.Duration {
	return time.Duration(c.UnreadCacheTTLSec) * time.Second
}

func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.JobTimeoutSec) * time.Second
}

func findRepoRoot() (string, bool) {
	start, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := start
	for i := 0; i < 8; i++ {
		candidate := filepath.Join(dir, "configs")
		if fi, err := os.Stat(candidate); err == nil && fi.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func loadConfigFile(path string, explicit bool) (map[string]any, []Problem, bool) {
	if strings.TrimSpace(path) == "" {
		return nil, nil, false
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if explicit && !errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("failed to read config file: %v", err)}}, false
		}
		if explicit && errors.Is(err, os.ErrNotExist) {
			return nil, []Problem{{Field: "CONFIG_PATH", Message: "config file not found"}}, false
		}
		return nil, nil, false
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, []Problem{{Field: "CONFIG_PATH", Message: fmt.Sprintf("invalid json: %v", err)}}, false
	}
	return raw, nil, true
}

// setters maps every config key to a function that applies a raw value
// (env string or decoded JSON value) to cfg.
func setters(cfg *Config) map[string]func(any) error {
	str := func(dst *string, trim bool) func(any) error {
		return func(v any) error {
			s, ok := v.(string)
			if !ok {
				return errors.New("must be a string")
			}
			if trim {
				s = strings.TrimSpace(s)
			}
			*dst = s
			return nil
		}
	}
	integer := func(dst *int) func(any) error {
		return func(v any) error {
			n, ok := asInt(v)
			if !ok {
				return errors.New("must be an integer")
			}
			*dst = n
			return nil
		}
	}
	boolean := func(dst *bool) func(any) error {
		return func(v any) error {
			switch t := v.(type) {
			case bool:
				*dst = t
				return nil
			case string:
				if b, ok := asBool(t); ok {
					*dst = b
					return nil
				}
			}
			return errors.New("must be a boolean")
		}
	}
	number := func(dst *float64) func(any) error {
		return func(v any) error {
			f, ok := asFloat(v)
			if !ok {
				return errors.New("must be a number")
			}
			*dst = f
			return nil
		}
	}

	return map[string]func(any) error{
		"ENV":                          str(&cfg.Env, true),
		"SERVICE_NAME":                 str(&cfg.ServiceName, true),
		"HTTP_PORT":                    integer(&cfg.HTTPPort),
		"LOG_LEVEL":                    str(&cfg.LogLevel, true),
		"REQUEST_TIMEOUT_MS":           integer(&cfg.RequestTimeoutMS),
		"DATABASE_URL":                 str(&cfg.DatabaseURL, true),
		"DB_MAX_CONNS":                 integer(&cfg.DBMaxConns),
		"DB_MIN_CONNS":                 integer(&cfg.DBMinConns),
		"DB_CONN_MAX_IDLE_SECONDS":     integer(&cfg.DBConnMaxIdleSec),
		"DB_CONN_MAX_LIFETIME_SECONDS": integer(&cfg.DBConnMaxLifeSec),
		"REDIS_ADDR":                   str(&cfg.RedisAddr, true),
		"REDIS_PASSWORD":               str(&cfg.RedisPassword, false),
		"REDIS_DB":                     integer(&cfg.RedisDB),
		"UNREAD_CACHE_TTL_SECONDS":     integer(&cfg.UnreadCacheTTLSec),
		"ASYNQ_REDIS_ADDR":             str(&cfg.AsynqRedisAddr, true),
		"ASYNQ_REDIS_PASSWORD":         str(&cfg.AsynqRedisPass, false),
		"ASYNQ_REDIS_DB":               integer(&cfg.AsynqRedisDB),
		"ASYNQ_QUEUE":                  str(&cfg.AsynqQueue, true),
		"ASYNQ_CONCURRENCY":            integer(&cfg.AsynqConcurrency),
		"JOB_MAX_RETRY":                integer(&cfg.JobMaxRetry),
		"JOB_TIMEOUT_SECONDS":          integer(&cfg.JobTimeoutSec),
		"KAFKA_BROKERS": func(v any) error {
			switch t := v.(type) {
			case string:
				cfg.KafkaBrokers = parseCSV(t)
			case []any:
				cfg.KafkaBrokers = parseAnyCSV(t)
			default:
				return errors.New("must be a list or comma separated string")
			}
			return nil
		},
		"KAFKA_CLIENT_ID":             str(&cfg.KafkaClientID, true),
		"KAFKA_RETRY_MAX":             integer(&cfg.KafkaRetryMax),
		"KAFKA_WRITE_TIMEOUT_MS":      integer(&cfg.KafkaWriteMS),
		"OTEL_ENABLED":                boolean(&cfg.OtelEnabled),
		"OTEL_EXPORTER_OTLP_ENDPOINT": str(&cfg.OtelEndpoint, true),
		"OTEL_EXPORTER_OTLP_INSECURE": boolean(&cfg.OtelInsecure),
		"OTEL_SAMPLE_RATIO":           number(&cfg.OtelSampleRatio),
	}
}

func applyEnv(cfg *Config, problems *[]Problem) {
	set := setters(cfg)
	for key, apply := range set {
		if key == "ENV" {
			continue
		}
		raw := strings.TrimSpace(os.Getenv(key))
		if key == "HTTP_PORT" && raw == "" {
			raw = strings.TrimSpace(os.Getenv("PORT"))
		}
		if raw == "" {
			continue
		}
		if key == "REDIS_PASSWORD" || key == "ASYNQ_REDIS_PASSWORD" {
			raw = os.Getenv(key)
		}
		if err := apply(raw); err != nil {
			*problems = append(*problems, Problem{Field: key, Message: key + " " + err.Error()})
		}
	}
}

func applyConfigMap(cfg *Config, raw map[string]any, problems *[]Problem) {
	set := setters(cfg)
	for k, v := range raw {
		key := strings.ToUpper(strings.TrimSpace(k))
		apply, ok := set[key]
		if !ok {
			continue
		}
		if err := apply(v); err != nil {
			*problems = append(*problems, Problem{Field: key, Message: key + " " + err.Error()})
		}
	}
}

func readStringKey(raw map[string]any, key string) (string, bool) {
	for k, v := range raw {
		if strings.EqualFold(strings.TrimSpace(k), key) {
			s, ok := v.(string)
			return s, ok
		}
	}
	return "", false
}

func asInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		return int(i), err == nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		return i, err == nil
	default:
		return 0, false
	}
}

func asBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1", "yes", "y":
		return true, true
	case "false", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}

func asFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func parseCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseAnyCSV(raw []any) []string {
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			s = strings.TrimSpace(s)
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
