package test

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hibiken/asynq"
	"github.com/jmoiron/sqlx"
	"watchlink/internal/db"
)

// MockTaskEnqueuer is a mock implementation of events.TaskEnqueuer for testing.
type MockTaskEnqueuer struct {
	EnqueuedTasks []*asynq.Task
	EnqueuedOpts  [][]asynq.Option
}

func (m *MockTaskEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	m.EnqueuedTasks = append(m.EnqueuedTasks, task)
	m.EnqueuedOpts = append(m.EnqueuedOpts, opts)
	return &asynq.TaskInfo{ID: "test-task-id", Queue: "default"}, nil
}

// TasksOfType returns the enqueued tasks matching the given task type.
func (m *MockTaskEnqueuer) TasksOfType(taskType string) []*asynq.Task {
	var matched []*asynq.Task
	for _, task := range m.EnqueuedTasks {
		if task.Type() == taskType {
			matched = append(matched, task)
		}
	}
	return matched
}

func NewMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDb, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	sqlxDB := sqlx.NewDb(mockDb, "sqlmock")

	originalDB := db.DB
	db.DB = sqlxDB
	t.Cleanup(func() {
		db.DB = originalDB
		mockDb.Close()
	})

	return sqlxDB, mock
}
