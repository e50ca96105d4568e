// Package history records runner invocations in a SQLite database using GORM.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Sentinel errors
var (
	ErrNilInvocation = errors.New("invocation cannot be nil")
	ErrEmptyRunner   = errors.New("invocation runner cannot be empty")
)

// DefaultLimit caps list queries when the caller passes a non-positive limit.
const DefaultLimit = 20

// Invocation is one `mr run` of a runner.
type Invocation struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Runner     string    `gorm:"not null;index:idx_runner_started" json:"runner"`
	ConfigPath string    `gorm:"not null" json:"config_path"`
	Argv       string    `gorm:"type:json" json:"-"`
	StartedAt  time.Time `gorm:"not null;index:idx_runner_started" json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	ExitCode   int       `json:"exit_code"`
	Lines      int       `json:"lines"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"-"`
}

// TableName overrides the table name for GORM.
func (Invocation) TableName() string {
	return "invocations"
}

// SetArgv stores argv as a JSON array.
func (i *Invocation) SetArgv(argv []string) error {
	data, err := json.Marshal(argv)
	if err != nil {
		return fmt.Errorf("failed to encode argv: %w", err)
	}
	i.Argv = string(data)
	return nil
}

// Command decodes the stored argv.
func (i *Invocation) Command() ([]string, error) {
	if i.Argv == "" {
		return nil, nil
	}
	var argv []string
	if err := json.Unmarshal([]byte(i.Argv), &argv); err != nil {
		return nil, fmt.Errorf("failed to decode argv of invocation %d: %w", i.ID, err)
	}
	return argv, nil
}

// MarshalJSON includes the decoded argv as "command".
func (i Invocation) MarshalJSON() ([]byte, error) {
	type plain Invocation
	argv, err := i.Command()
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Command []string `json:"command"`
	}{plain: plain(i), Command: argv})
}

// Store defines the interface for invocation history operations
type Store interface {
	Close() error
	Record(*Invocation) error
	ListRecent(limit int) ([]*Invocation, error)
	ListByRunner(runner string, limit int) ([]*Invocation, error)
	Count() (int64, error)
}

var _ Store = (*DB)(nil)

// DB wraps gorm.DB with history operations
type DB struct {
	db *gorm.DB
}

// Config holds database configuration
type Config struct {
	DatabasePath string
	LogLevel     string // silent, error, warn, info
}

// Open opens the history database and runs migrations
func Open(cfg Config) (*DB, error) {
	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := db.AutoMigrate(&Invocation{}); err != nil {
		return nil, fmt.Errorf("failed to migrate history schema: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database connection
func (d *DB) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close history database: %w", err)
	}
	return nil
}

// Record inserts a new invocation
func (d *DB) Record(inv *Invocation) error {
	if inv == nil {
		return ErrNilInvocation
	}
	if inv.Runner == "" {
		return ErrEmptyRunner
	}
	if inv.StartedAt.IsZero() {
		inv.StartedAt = time.Now()
	}
	if err := d.db.Create(inv).Error; err != nil {
		return fmt.Errorf("failed to record invocation of %s: %w", inv.Runner, err)
	}
	return nil
}

// ListRecent returns the newest invocations first
func (d *DB) ListRecent(limit int) ([]*Invocation, error) {
	var invocations []*Invocation
	if err := d.db.Order("started_at DESC, id DESC").Limit(normalizeLimit(limit)).Find(&invocations).Error; err != nil {
		return nil, fmt.Errorf("failed to list invocations: %w", err)
	}
	return invocations, nil
}

// ListByRunner returns the newest invocations of one runner first
func (d *DB) ListByRunner(runner string, limit int) ([]*Invocation, error) {
	var invocations []*Invocation
	if err := d.db.Where("runner = ?", runner).
		Order("started_at DESC, id DESC").
		Limit(normalizeLimit(limit)).
		Find(&invocations).Error; err != nil {
		return nil, fmt.Errorf("failed to list invocations of %s: %w", runner, err)
	}
	return invocations, nil
}

// Count returns the number of recorded invocations
func (d *DB) Count() (int64, error) {
	var count int64
	if err := d.db.Model(&Invocation{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count invocations: %w", err)
	}
	return count, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
