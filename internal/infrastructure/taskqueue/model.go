package taskqueue

import (
	"time"

	"github.com/harpou/ai-gateway/internal/domain/entity"
)

// TaskModel is the gorm row backing one task. The durable store is the
// synchronization primitive between the server and worker processes.
type TaskModel struct {
	ID         string `gorm:"primaryKey"`
	Type       string `gorm:"index"`
	State      string `gorm:"index"`
	Payload    string
	Result     string
	Error      string
	CreatedAt  time.Time `gorm:"index"`
	StartedAt  *time.Time
	FinishedAt *time.Time
}

// TableName fixes the table name independent of gorm pluralization rules.
func (TaskModel) TableName() string {
	return "tasks"
}

// toEntity converts a row to the domain task record.
func (m *TaskModel) toEntity() entity.Task {
	return entity.Task{
		ID:        m.ID,
		Type:      m.Type,
		State:     entity.TaskState(m.State),
		Result:    m.Result,
		Error:     m.Error,
		CreatedAt: m.CreatedAt,
	}
}
