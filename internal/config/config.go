// Package config loads process configuration from EVENTHUB_* environment
// variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/dukerupert/eventhub/internal/image"
)

type Config struct {
	Port         string        `env:"EVENTHUB_PORT"          envDefault:"8080"`
	DBPath       string        `env:"EVENTHUB_DB_PATH"       envDefault:"eventhub.db"`
	LogLevel     string        `env:"EVENTHUB_LOG_LEVEL"     envDefault:"info"`
	LogFormat    string        `env:"EVENTHUB_LOG_FORMAT"    envDefault:"text"`
	JWTSecret    string        `env:"EVENTHUB_JWT_SECRET"`
	TokenTTL     time.Duration `env:"EVENTHUB_TOKEN_TTL"     envDefault:"24h"`
	QueryTimeout time.Duration `env:"EVENTHUB_QUERY_TIMEOUT" envDefault:"5s"`
	CategoryTTL  time.Duration `env:"EVENTHUB_CATEGORY_TTL"  envDefault:"5m"`
	ImageDir     string        `env:"EVENTHUB_IMAGE_DIR"     envDefault:"storage/images"`

	// RegisterLimit caps registration and cancellation calls per client per
	// minute.
	RegisterLimit int `env:"EVENTHUB_REGISTER_LIMIT" envDefault:"20"`

	// WSOrigins lists host patterns allowed to open websocket connections.
	WSOrigins []string `env:"EVENTHUB_WS_ORIGINS" envSeparator:","`

	S3 S3Config
}

type S3Config struct {
	Endpoint  string `env:"EVENTHUB_S3_ENDPOINT"`
	Bucket    string `env:"EVENTHUB_S3_BUCKET"`
	Region    string `env:"EVENTHUB_S3_REGION" envDefault:"us-east-1"`
	AccessKey string `env:"EVENTHUB_S3_ACCESS_KEY"`
	SecretKey string `env:"EVENTHUB_S3_SECRET_KEY"`
	Prefix    string `env:"EVENTHUB_S3_PREFIX" envDefault:"events"`
}

// Image converts to the image package's S3 settings.
func (c S3Config) Image() image.S3Config {
	return image.S3Config{
		Endpoint:  c.Endpoint,
		Bucket:    c.Bucket,
		Region:    c.Region,
		AccessKey: c.AccessKey,
		SecretKey: c.SecretKey,
		Prefix:    c.Prefix,
	}
}

// Load reads the process environment.
func Load() (*Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("EVENTHUB_JWT_SECRET must be at least 32 characters"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("EVENTHUB_TOKEN_TTL must be positive"))
	}
	if c.QueryTimeout <= 0 {
		errs = append(errs, errors.New("EVENTHUB_QUERY_TIMEOUT must be positive"))
	}
	if c.RegisterLimit <= 0 {
		errs = append(errs, errors.New("EVENTHUB_REGISTER_LIMIT must be positive"))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("EVENTHUB_LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}
	if c.S3.Bucket != "" && !c.S3.Image().Enabled() {
		errs = append(errs, errors.New("EVENTHUB_S3_BUCKET requires EVENTHUB_S3_ACCESS_KEY and EVENTHUB_S3_SECRET_KEY"))
	}
	return errors.Join(errs...)
}
