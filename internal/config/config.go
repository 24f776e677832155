// Package config содержит логику чтения конфигурации сервиса донорства.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/mmeshcher/bloodbank-system/internal/validation"
)

// Драйверы хранилища.
const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultMongoDatabase     = "bloodbank"
	defaultMaxAcceptAttempts = 3
	defaultCampExpiry        = time.Minute
)

// Config содержит параметры конфигурации сервиса донорства.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS" validate:"required,hostname_port"`
	StorageDriver     string `env:"STORAGE_DRIVER" validate:"oneof=memory mongo postgres"`
	MongoURI          string `env:"MONGO_URI" validate:"required_if=StorageDriver mongo"`
	MongoDatabase     string `env:"MONGO_DATABASE"`
	DatabaseURI       string `env:"DATABASE_URI" validate:"required_if=StorageDriver postgres"`
	JWTSecret         string `env:"JWT_SECRET"`
	MaxAcceptAttempts int    `env:"MAX_ACCEPT_ATTEMPTS" validate:"gte=1,lte=20"`
	SeedFile          string `env:"SEED_FILE"`

	CampExpiryInterval time.Duration `env:"CAMP_EXPIRY_INTERVAL" validate:"gte=0"`
}

// Parse считывает конфигурацию из файла .env, флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg, err := loadEnv()
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.StorageDriver, "s", StorageMemory, "storage driver: memory, mongo or postgres")
	flag.StringVar(&cfg.MongoURI, "m", "", "MongoDB URI")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "PostgreSQL database URI")
	flag.StringVar(&cfg.JWTSecret, "k", "", "secret key for signing access tokens")
	flag.StringVar(&cfg.SeedFile, "f", "", "YAML file with users to create at startup")
	flag.DurationVar(&cfg.CampExpiryInterval, "e", defaultCampExpiry, "interval between finished camp checks, 0 disables")

	flag.Parse()

	override(&cfg.RunAddress, envCfg.RunAddress)
	override(&cfg.StorageDriver, envCfg.StorageDriver)
	override(&cfg.MongoURI, envCfg.MongoURI)
	override(&cfg.DatabaseURI, envCfg.DatabaseURI)
	override(&cfg.JWTSecret, envCfg.JWTSecret)
	override(&cfg.SeedFile, envCfg.SeedFile)
	if _, ok := os.LookupEnv("CAMP_EXPIRY_INTERVAL"); ok {
		cfg.CampExpiryInterval = envCfg.CampExpiryInterval
	}
	cfg.MongoDatabase = envCfg.MongoDatabase
	cfg.MaxAcceptAttempts = envCfg.MaxAcceptAttempts

	cfg.applyDefaults()
	return cfg, nil
}

// FromEnv считывает конфигурацию только из файла .env и переменных окружения.
// Используется утилитами, у которых свой разбор аргументов командной строки.
func FromEnv() (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if _, ok := os.LookupEnv("CAMP_EXPIRY_INTERVAL"); !ok {
		cfg.CampExpiryInterval = defaultCampExpiry
	}
	cfg.applyDefaults()
	return cfg, nil
}

func loadEnv() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.RunAddress == "" {
		c.RunAddress = defaultRunAddress
	}
	if c.StorageDriver == "" {
		c.StorageDriver = StorageMemory
	}
	if c.MongoDatabase == "" {
		c.MongoDatabase = defaultMongoDatabase
	}
	if c.MaxAcceptAttempts == 0 {
		c.MaxAcceptAttempts = defaultMaxAcceptAttempts
	}
}

func override(dst *string, envValue string) {
	if envValue != "" {
		*dst = envValue
	}
}

// Validate проверяет согласованность параметров.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
