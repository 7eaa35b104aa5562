package audit

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// eventModel is the GORM row for a persisted audit event.
type eventModel struct {
	ID      string    `gorm:"primaryKey;type:text"`
	Time    time.Time `gorm:"index;not null"`
	Op      string    `gorm:"index;not null"`
	Outcome string    `gorm:"not null"`
	Vault   string
	Item    string
	Detail  string
}

func (eventModel) TableName() string { return "audit_events" }

// Store persists audit events to a local SQLite database so history
// survives broker restarts (unlike the unlock session, which must not).
// Uses the pure-Go glebarez driver, no CGO.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// OpenStore opens (or creates) the audit database and migrates its schema.
func OpenStore(path string, slogger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating audit database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)", path)

	gormLogger := logger.New(
		slogAdapter{slogger},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLogger,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("opening audit database: %w", err)
	}
	if err := db.AutoMigrate(&eventModel{}); err != nil {
		return nil, fmt.Errorf("migrating audit schema: %w", err)
	}

	slogger.Info("audit store opened", slog.String("path", path))
	return &Store{db: db, logger: slogger}, nil
}

// Record inserts one event.
func (s *Store) Record(ctx context.Context, event Event) error {
	fill(&event)
	row := eventModel{
		ID:      event.ID,
		Time:    event.Time,
		Op:      event.Op,
		Outcome: event.Outcome,
		Vault:   event.Vault,
		Item:    event.Item,
		Detail:  event.Detail,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

// Recent returns the n most recent events, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Event, error) {
	if n <= 0 {
		n = 50
	}
	var rows []eventModel
	err := s.db.WithContext(ctx).
		Order("time DESC").
		Limit(n).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}

	events := make([]Event, len(rows))
	for i, row := range rows {
		events[i] = Event{
			ID:      row.ID,
			Time:    row.Time,
			Op:      row.Op,
			Outcome: row.Outcome,
			Vault:   row.Vault,
			Item:    row.Item,
			Detail:  row.Detail,
		}
	}
	return events, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// slogAdapter wraps *slog.Logger for GORM's logger.Writer interface.
type slogAdapter struct {
	logger *slog.Logger
}

func (s slogAdapter) Printf(format string, args ...any) {
	s.logger.Info(fmt.Sprintf(format, args...))
}

var _ Recorder = (*Store)(nil)
