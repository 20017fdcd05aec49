package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/harpou/ai-gateway/internal/domain/entity"
	"github.com/harpou/ai-gateway/internal/infrastructure/config"
)

// Store is the durable task queue shared by the server (enqueue, poll)
// and worker (claim, complete) roles.
type Store struct {
	db *gorm.DB
}

// OpenStore connects to the configured database and migrates the tasks
// table.
func OpenStore(cfg *config.DatabaseConfig) (*Store, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&TaskModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate tasks table: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing gorm handle. Used by tests.
func NewStoreWithDB(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&TaskModel{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Enqueue inserts a PENDING task and returns its id.
func (s *Store) Enqueue(ctx context.Context, taskType string, payload interface{}) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal task payload: %w", err)
	}

	row := TaskModel{
		ID:        uuid.NewString(),
		Type:      taskType,
		State:     string(entity.TaskPending),
		Payload:   string(data),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("insert task: %w", err)
	}
	return row.ID, nil
}

// Get fetches a task record. An unknown id reports found=false; callers
// treat that as still-pending, which also covers enqueue/poll races.
func (s *Store) Get(ctx context.Context, id string) (entity.Task, bool, error) {
	var row TaskModel
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return entity.Task{}, false, nil
	}
	if err != nil {
		return entity.Task{}, false, fmt.Errorf("load task %s: %w", id, err)
	}
	return row.toEntity(), true, nil
}

// Claim atomically moves the oldest PENDING task of the given types to
// STARTED and returns it. The conditional UPDATE is the claim: two
// workers racing on the same row see RowsAffected 1 and 0 respectively.
func (s *Store) Claim(ctx context.Context, taskTypes []string) (*TaskModel, error) {
	var candidate TaskModel
	err := s.db.WithContext(ctx).
		Where("state = ? AND type IN ?", string(entity.TaskPending), taskTypes).
		Order("created_at").
		First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find pending task: %w", err)
	}

	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ? AND state = ?", candidate.ID, string(entity.TaskPending)).
		Updates(map[string]interface{}{
			"state":      string(entity.TaskStarted),
			"started_at": &now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("claim task %s: %w", candidate.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Another worker claimed it first.
		return nil, nil
	}

	candidate.State = string(entity.TaskStarted)
	candidate.StartedAt = &now
	return &candidate, nil
}

// Complete records a successful result. Guarded on STARTED so terminal
// rows stay immutable.
func (s *Store) Complete(ctx context.Context, id, result string) error {
	return s.finish(ctx, id, entity.TaskSuccess, result, "")
}

// Fail records a failed result.
func (s *Store) Fail(ctx context.Context, id, errMsg string) error {
	return s.finish(ctx, id, entity.TaskFailure, "", errMsg)
}

func (s *Store) finish(ctx context.Context, id string, state entity.TaskState, result, errMsg string) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("id = ? AND state = ?", id, string(entity.TaskStarted)).
		Updates(map[string]interface{}{
			"state":       string(state),
			"result":      result,
			"error":       errMsg,
			"finished_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("finish task %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("task %s is not in STARTED state", id)
	}
	return nil
}

// ReclaimStale returns abandoned claims to the queue: a STARTED row whose
// started_at is older than the lease window belongs to a worker that died
// mid-run. Requeueing keeps delivery at-least-once; handlers must tolerate
// a rerun.
func (s *Store) ReclaimStale(ctx context.Context, lease time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-lease)
	res := s.db.WithContext(ctx).Model(&TaskModel{}).
		Where("state = ? AND started_at < ?", string(entity.TaskStarted), cutoff).
		Updates(map[string]interface{}{
			"state":      string(entity.TaskPending),
			"started_at": nil,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("reclaim stale tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SweepExpired deletes terminal tasks older than the retention window.
func (s *Store) SweepExpired(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	res := s.db.WithContext(ctx).
		Where("state IN ? AND created_at < ?",
			[]string{string(entity.TaskSuccess), string(entity.TaskFailure), string(entity.TaskRevoked)},
			cutoff,
		).
		Delete(&TaskModel{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep expired tasks: %w", res.Error)
	}
	return res.RowsAffected, nil
}
