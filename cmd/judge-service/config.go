package main

import (
	"fmt"
	"os"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/http/middleware"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/profile"
	"codejudge/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 10 * time.Minute
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultAcquireTimeout  = 2 * time.Second
	defaultStatusTimeout   = 3 * time.Second
	defaultStorageTimeout  = 10 * time.Second
	defaultTaskTopic       = "judge.task"
	defaultVerdictTopic    = "judge.verdict"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// SubmitRateLimit throttles synchronous submissions per client IP; zero ip_max disables it.
	SubmitRateLimit middleware.RateLimitPolicy `yaml:"submit_rate_limit"`
}

// WorkerConfig bounds how many submissions are judged at once.
type WorkerConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	// JudgeTimeout caps one whole submission; zero disables it.
	JudgeTimeout time.Duration `yaml:"judge_timeout"`
}

// KafkaConfig holds the judge task queue settings. The queue is disabled when no brokers are set.
type KafkaConfig struct {
	mq.KafkaConfig  `yaml:",inline"`
	TaskTopic       string        `yaml:"task_topic"`
	VerdictTopic    string        `yaml:"verdict_topic"`
	DeadLetterTopic string        `yaml:"dead_letter_topic"`
	ConsumerGroup   string        `yaml:"consumer_group"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

// SourceConfig holds source download settings.
type SourceConfig struct {
	Bucket  string        `yaml:"bucket"`
	Timeout time.Duration `yaml:"timeout"`
}

// StatusConfig holds status persistence settings.
type StatusConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig           `yaml:"server"`
	Logger    logger.Config          `yaml:"logger"`
	Worker    WorkerConfig           `yaml:"worker"`
	Sandbox   engine.Config          `yaml:"sandbox"`
	Languages []profile.LanguageSpec `yaml:"languages"`
	Redis     cache.RedisConfig      `yaml:"redis"`
	Kafka     KafkaConfig            `yaml:"kafka"`
	MinIO     storage.MinIOConfig    `yaml:"minio"`
	Source    SourceConfig           `yaml:"source"`
	Status    StatusConfig           `yaml:"status"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	switch cfg.Sandbox.Backend {
	case "", engine.BackendProcess, engine.BackendDocker:
	default:
		return nil, fmt.Errorf("unknown sandbox backend %q", cfg.Sandbox.Backend)
	}
	cfg.Redis = cfg.Redis.WithDefaults()

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.SubmitRateLimit.IPMax > 0 && cfg.Server.SubmitRateLimit.Window <= 0 {
		cfg.Server.SubmitRateLimit.Window = time.Minute
	}
	if cfg.Worker.PoolSize <= 0 {
		cfg.Worker.PoolSize = 1
	}
	if cfg.Worker.AcquireTimeout <= 0 {
		cfg.Worker.AcquireTimeout = defaultAcquireTimeout
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = profile.DefaultLanguages()
	}
	if cfg.Status.TTL <= 0 {
		cfg.Status.TTL = repository.DefaultStatusTTL
	}
	if cfg.Status.Timeout <= 0 {
		cfg.Status.Timeout = defaultStatusTimeout
	}
	if cfg.Source.Bucket == "" {
		cfg.Source.Bucket = cfg.MinIO.Bucket
	}
	if cfg.Source.Timeout <= 0 {
		cfg.Source.Timeout = defaultStorageTimeout
	}
	if cfg.Kafka.TaskTopic == "" {
		cfg.Kafka.TaskTopic = defaultTaskTopic
	}
	if cfg.Kafka.VerdictTopic == "" {
		cfg.Kafka.VerdictTopic = defaultVerdictTopic
	}
	return &cfg, nil
}

func (k KafkaConfig) enabled() bool {
	return len(k.Brokers) > 0
}

func (k KafkaConfig) subscribeOptions(concurrency int) *mq.SubscribeOptions {
	return &mq.SubscribeOptions{
		ConsumerGroup:   k.ConsumerGroup,
		Concurrency:     concurrency,
		MaxRetries:      k.MaxRetries,
		RetryDelay:      k.RetryDelay,
		DeadLetterTopic: k.DeadLetterTopic,
	}
}
