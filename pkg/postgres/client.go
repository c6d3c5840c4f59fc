package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ClientOption configures Client.
type ClientOption func(*ClientConfig)

// ClientConfig holds PostgreSQL pool configuration.
type ClientConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	LogLevel        logger.LogLevel
}

// WithDSN sets the connection string.
func WithDSN(dsn string) ClientOption {
	return func(c *ClientConfig) { c.DSN = dsn }
}

// WithPool sets pool limits.
func WithPool(maxOpen, maxIdle int, lifetime, idle time.Duration) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
		c.ConnMaxLifetime = lifetime
		c.ConnMaxIdleTime = idle
	}
}

// WithLogLevel sets the gorm logger level: silent, error, warn, info.
func WithLogLevel(level string) ClientOption {
	return func(c *ClientConfig) {
		switch level {
		case "error":
			c.LogLevel = logger.Error
		case "warn":
			c.LogLevel = logger.Warn
		case "info":
			c.LogLevel = logger.Info
		default:
			c.LogLevel = logger.Silent
		}
	}
}

// Client wraps the gorm handle and its underlying pool.
type Client struct {
	gorm *gorm.DB
	sql  *sql.DB
}

// NewClient opens the pool and pings the server.
func NewClient(opts ...ClientOption) (*Client, error) {
	cfg := &ClientConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
		LogLevel:        logger.Silent,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("dsn is required")
	}

	gdb, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger:  logger.Default.LogMode(cfg.LogLevel),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}
	sqldb, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.MaxIdleConns)
	sqldb.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqldb.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqldb.PingContext(ctx); err != nil {
		_ = sqldb.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return &Client{gorm: gdb, sql: sqldb}, nil
}

// Gorm returns the ORM handle.
func (c *Client) Gorm() *gorm.DB { return c.gorm }

// Health pings the pool.
func (c *Client) Health(ctx context.Context) error {
	if c == nil || c.sql == nil {
		return fmt.Errorf("postgres not initialised")
	}
	return c.sql.PingContext(ctx)
}

// Migrate creates or updates tables for models.
func (c *Client) Migrate(models ...interface{}) error {
	if err := c.gorm.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// Close closes the pool.
func (c *Client) Close() error {
	if c == nil || c.sql == nil {
		return nil
	}
	return c.sql.Close()
}
