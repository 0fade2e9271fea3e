package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"todo-backend/pkg/config"
)

const (
	DriverDynamo   = "dynamodb"
	DriverPostgres = "postgres"

	defaultSignedURLExpiration = 300 * time.Second
)

// StoreConfig selects and addresses the todo record store.
type StoreConfig struct {
	Driver         string `yaml:"driver"`
	Table          string `yaml:"table"`
	CreatedAtIndex string `yaml:"created_at_index"`
	ConsistentRead *bool  `yaml:"consistent_read"`
}

// BucketConfig addresses the attachment bucket.
type BucketConfig struct {
	Name                string        `yaml:"name"`
	SignedURLExpiration time.Duration `yaml:"signed_url_expiration"`
}

type Config struct {
	Server config.ServerConfig `yaml:"server"`
	AWS    config.AWSConfig    `yaml:"aws"`
	Store  StoreConfig         `yaml:"store"`
	Bucket BucketConfig        `yaml:"bucket"`
	DB     config.DBConfig     `yaml:"db"`
	Redis  config.RedisConfig  `yaml:"redis"`
	MQ     config.MQConfig     `yaml:"mq"`
	Auth   config.AuthConfig   `yaml:"auth"`
}

// Load reads config.yaml (or CONFIG_PATH), then .env/secrets.env next to it,
// then applies environment overrides.
func Load() (*Config, error) {
	path := config.GetEnv("CONFIG_PATH", "config.yaml")

	if err := config.LoadEnvFiles(filepath.Dir(path)); err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := config.LoadYAML(path, cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideAWSFromEnv(&cfg.AWS)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideAuthFromEnv(&cfg.Auth)
	overrideStoreFromEnv(cfg)
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the configuration used before the file and environment
// are applied.
func Defaults() *Config {
	consistent := true
	return &Config{
		Server: config.ServerConfig{
			Port:         ":8080",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: StoreConfig{
			Driver:         DriverDynamo,
			ConsistentRead: &consistent,
		},
		Bucket: BucketConfig{
			SignedURLExpiration: defaultSignedURLExpiration,
		},
		Redis: config.RedisConfig{
			TTL: time.Minute,
		},
	}
}

func overrideStoreFromEnv(cfg *Config) {
	if driver := os.Getenv("STORE_DRIVER"); driver != "" {
		cfg.Store.Driver = driver
	}
	if table := os.Getenv("TODOS_TABLE"); table != "" {
		cfg.Store.Table = table
	}
	if index := os.Getenv("TODOS_CREATED_AT_INDEX"); index != "" {
		cfg.Store.CreatedAtIndex = index
	}
	if bucket := config.GetEnv("ATTACHMENT_S3_BUCKET", os.Getenv("TODOS_BUCKET")); bucket != "" {
		cfg.Bucket.Name = bucket
	}
	if exp := os.Getenv("SIGNED_URL_EXPIRATION"); exp != "" {
		// unparsable values fall back to the default
		if d, err := config.ParseSeconds(exp); err == nil && d > 0 {
			cfg.Bucket.SignedURLExpiration = d
		} else {
			cfg.Bucket.SignedURLExpiration = defaultSignedURLExpiration
		}
	}
}

// ConsistentRead reports whether list queries use strongly consistent reads.
func (c *Config) ConsistentRead() bool {
	return c.Store.ConsistentRead == nil || *c.Store.ConsistentRead
}

// Validate checks that everything the selected store needs is present.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverDynamo:
		if c.Store.Table == "" {
			errs = append(errs, errors.New("store.table (TODOS_TABLE) is required"))
		}
		if c.Store.CreatedAtIndex == "" {
			errs = append(errs, errors.New("store.created_at_index (TODOS_CREATED_AT_INDEX) is required"))
		}
	case DriverPostgres:
		if c.DB.Host == "" || c.DB.Name == "" {
			errs = append(errs, errors.New("db.host and db.name are required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Bucket.Name == "" {
		errs = append(errs, errors.New("bucket.name (ATTACHMENT_S3_BUCKET) is required"))
	}
	if c.Bucket.SignedURLExpiration <= 0 {
		errs = append(errs, errors.New("bucket.signed_url_expiration must be positive"))
	}

	return errors.Join(errs...)
}
