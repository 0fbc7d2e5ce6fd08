package deliveries

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"zcommit/pkg/storage"
)

// DefaultLimit caps ListDeliveries when the filter sets no limit.
const DefaultLimit = 100

// Config selects the database holding the delivery journal.
type Config struct {
	Driver      string
	DSN         string
	Table       string
	AutoMigrate bool
}

// Store implements storage.DeliveryStore on top of GORM.
type Store struct {
	db    *gorm.DB
	table string
}

type row struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RequestID string    `gorm:"column:request_id;size:128;index"`
	Endpoint  string    `gorm:"column:endpoint;size:32;not null"`
	CommitID  string    `gorm:"column:commit_id;size:64"`
	Sender    string    `gorm:"column:sender;size:255"`
	Class     string    `gorm:"column:class;size:255;not null;index"`
	Instance  string    `gorm:"column:instance;size:255"`
	Signature string    `gorm:"column:signature;size:255"`
	Status    string    `gorm:"column:status;size:16;not null"`
	Error     string    `gorm:"column:error;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// Open creates a GORM-backed delivery journal.
func Open(cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("unsupported storage driver: %q", cfg.Driver)
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	table := cfg.Table
	if table == "" {
		table = "zcommit_deliveries"
	}
	store := &Store{db: gormDB, table: table}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			_ = store.Close()
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RecordDelivery appends a record to the journal.
func (s *Store) RecordDelivery(ctx context.Context, record storage.DeliveryRecord) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	if record.Class == "" {
		return errors.New("class is required")
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	data := toRow(record)
	return s.tableDB().WithContext(ctx).Create(&data).Error
}

// ListDeliveries returns the newest records matching filter first.
func (s *Store) ListDeliveries(ctx context.Context, filter storage.DeliveryFilter) ([]storage.DeliveryRecord, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	query := s.tableDB().WithContext(ctx)
	if filter.Class != "" {
		query = query.Where("class = ?", filter.Class)
	}
	if filter.Instance != "" {
		query = query.Where("instance = ?", filter.Instance)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	var data []row
	if err := query.Order("id desc").Limit(limit).Find(&data).Error; err != nil {
		return nil, err
	}
	records := make([]storage.DeliveryRecord, 0, len(data))
	for _, item := range data {
		records = append(records, fromRow(item))
	}
	return records, nil
}

func (s *Store) migrate() error {
	return s.tableDB().AutoMigrate(&row{})
}

func (s *Store) tableDB() *gorm.DB {
	return s.db.Table(s.table)
}

func toRow(record storage.DeliveryRecord) row {
	return row{
		ID:        record.ID,
		RequestID: record.RequestID,
		Endpoint:  record.Endpoint,
		CommitID:  record.CommitID,
		Sender:    record.Sender,
		Class:     record.Class,
		Instance:  record.Instance,
		Signature: record.Signature,
		Status:    record.Status,
		Error:     record.Error,
		CreatedAt: record.CreatedAt,
	}
}

func fromRow(data row) storage.DeliveryRecord {
	return storage.DeliveryRecord{
		ID:        data.ID,
		RequestID: data.RequestID,
		Endpoint:  data.Endpoint,
		CommitID:  data.CommitID,
		Sender:    data.Sender,
		Class:     data.Class,
		Instance:  data.Instance,
		Signature: data.Signature,
		Status:    data.Status,
		Error:     data.Error,
		CreatedAt: data.CreatedAt,
	}
}

func normalizeDriver(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), cfg)
	case "mysql":
		return gorm.Open(mysql.Open(dsn), cfg)
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
