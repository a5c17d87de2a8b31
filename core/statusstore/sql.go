package statusstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/longkeyy/datax-synctrack/common/protocol"
	"github.com/longkeyy/datax-synctrack/core/streamstatus"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/driver/sqlserver"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// streamStatusRow is the gorm model of the stream_statuses table.
type streamStatusRow struct {
	ID              string `gorm:"primaryKey;size:36"`
	WorkspaceID     string `gorm:"size:36;index"`
	ConnectionID    string `gorm:"size:36;index:idx_stream_status_attempt"`
	JobID           int64  `gorm:"index:idx_stream_status_attempt"`
	AttemptNumber   int    `gorm:"index:idx_stream_status_attempt"`
	JobType         string `gorm:"size:16"`
	StreamName      string `gorm:"size:255"`
	StreamNamespace string `gorm:"size:255"`
	RunState        string `gorm:"size:16"`
	IncompleteCause string `gorm:"size:16"`
	QuotaReset      *time.Time
	TransitionedAt  time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (streamStatusRow) TableName() string {
	return "stream_statuses"
}

func (r streamStatusRow) record() Record {
	return Record{
		ID:              r.ID,
		WorkspaceID:     r.WorkspaceID,
		ConnectionID:    r.ConnectionID,
		JobID:           r.JobID,
		AttemptNumber:   r.AttemptNumber,
		JobType:         streamstatus.JobType(r.JobType),
		StreamName:      r.StreamName,
		StreamNamespace: r.StreamNamespace,
		RunState:        streamstatus.RunState(r.RunState),
		IncompleteCause: streamstatus.IncompleteCause(r.IncompleteCause),
		QuotaReset:      r.QuotaReset,
		TransitionedAt:  r.TransitionedAt,
	}
}

// SQLStore stores statuses in a relational database through gorm.
type SQLStore struct {
	db *gorm.DB
}

var _ streamstatus.Store = (*SQLStore)(nil)

func dialector(driver DriverType, dsn string) (gorm.Dialector, error) {
	switch driver {
	case SQLite:
		return sqlite.Open(dsn), nil
	case MySQL:
		return mysql.Open(dsn), nil
	case PostgreSQL:
		return postgres.Open(dsn), nil
	case SQLServer:
		return sqlserver.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// OpenSQLStore connects with the named driver and migrates the schema.
func OpenSQLStore(driverName, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sql status store requires a dsn")
	}
	driver, err := ParseDriverType(driverName)
	if err != nil {
		return nil, err
	}
	dsn, err = NormalizeDSN(driver, dsn)
	if err != nil {
		return nil, err
	}
	d, err := dialector(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(d, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", driver, err)
	}
	return NewSQLStore(db)
}

// NewSQLStore uses an existing connection and migrates the schema.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if err := db.AutoMigrate(&streamStatusRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate stream_statuses: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) CreateStatus(ctx context.Context, rc streamstatus.ReplicationContext, stream protocol.StreamKey, transitionedAt time.Time) (string, error) {
	rec := newRecord(uuid.NewString(), rc, stream, transitionedAt)
	row := streamStatusRow{
		ID:              rec.ID,
		WorkspaceID:     rec.WorkspaceID,
		ConnectionID:    rec.ConnectionID,
		JobID:           rec.JobID,
		AttemptNumber:   rec.AttemptNumber,
		JobType:         string(rec.JobType),
		StreamName:      rec.StreamName,
		StreamNamespace: rec.StreamNamespace,
		RunState:        string(rec.RunState),
		TransitionedAt:  rec.TransitionedAt,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to insert stream status: %w", err)
	}
	return row.ID, nil
}

func (s *SQLStore) UpdateStatus(ctx context.Context, update streamstatus.StatusUpdate) error {
	var quotaReset *time.Time
	if update.RateLimit != nil {
		quotaReset = update.RateLimit.QuotaReset
	}
	result := s.db.WithContext(ctx).
		Model(&streamStatusRow{}).
		Where("id = ?", update.ID).
		Updates(map[string]interface{}{
			"run_state":        string(update.RunState),
			"incomplete_cause": string(update.IncompleteCause),
			"quota_reset":      quotaReset,
			"transitioned_at":  update.TransitionedAt,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update stream status %s: %w", update.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStatusNotFound
	}
	return nil
}

// Get loads a status by id.
func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	var row streamStatusRow
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, ErrStatusNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return row.record(), nil
}

// ListByAttempt returns the statuses of one attempt ordered by stream.
func (s *SQLStore) ListByAttempt(ctx context.Context, rc streamstatus.ReplicationContext) ([]Record, error) {
	var rows []streamStatusRow
	err := s.db.WithContext(ctx).
		Where("connection_id = ? AND job_id = ? AND attempt_number = ?",
			rc.ConnectionID.String(), rc.JobID, rc.AttemptNumber).
		Order("stream_namespace, stream_name").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

func (s *SQLStore) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
