package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/madcok-co/consumerd/internal/apierr"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// consumedRecord is the row database_sync inserts per record: a GORM
// model plus AutoMigrate rather than hand-written DDL.
type consumedRecord struct {
	ID        uint `gorm:"primarykey"`
	Topic     string
	Partition int32
	Offset    int64
	Key       string `gorm:"type:text"`
	Value     string `gorm:"type:text"`
}

// DatabaseSync inserts one row per record via GORM (§4.A). Failures are
// labelled transient (locked/busy) or permanent (schema mismatch) in
// the returned error, per the Processor contract's failure kinds; the
// insert is not retried, and the record's offset advances either way.
type DatabaseSync struct {
	id    string
	db    *gorm.DB
	table string
}

// NewDatabaseSync builds the database_sync Processor variant. config.db_dsn
// is opened with the sqlite driver, and an optional config.table
// overrides the default table name.
func NewDatabaseSync(id string, config map[string]any) (Processor, error) {
	dsn, ok := config["db_dsn"].(string)
	if !ok || dsn == "" {
		return nil, apierr.New(apierr.BadConfig, "database_sync: config.db_dsn is required")
	}
	table, _ := config["table"].(string)
	if table == "" {
		table = "consumed_records"
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, apierr.Wrap(apierr.BadConfig, "database_sync: open "+dsn, err)
	}

	if err := db.Table(table).AutoMigrate(&consumedRecord{}); err != nil {
		return nil, apierr.Wrap(apierr.BadConfig, "database_sync: migrate "+table, err)
	}

	return &DatabaseSync{id: id, db: db, table: table}, nil
}

func (p *DatabaseSync) ID() string { return p.id }

func (p *DatabaseSync) Process(ctx context.Context, rec Record) error {
	row := consumedRecord{
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Key:       string(rec.Key),
		Value:     string(rec.Value),
	}

	err := p.db.WithContext(ctx).Table(p.table).Create(&row).Error
	if err == nil {
		return nil
	}

	if isTransientDBError(err) {
		return fmt.Errorf("database_sync: transient insert failure: %w", err)
	}
	return fmt.Errorf("database_sync: permanent insert failure: %w", err)
}

// isTransientDBError classifies busy/locked database errors as
// retryable versus everything else (constraint/schema) as permanent,
// per §4.A's transient-vs-permanent failure policy.
func isTransientDBError(err error) bool {
	if errors.Is(err, gorm.ErrInvalidTransaction) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "locked") || strings.Contains(msg, "busy")
}

func (p *DatabaseSync) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ Processor = (*DatabaseSync)(nil)
