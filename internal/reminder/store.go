// Package reminder holds the reminder store, the intake path that creates
// reminders from chat messages and the background scheduler that fires them.
package reminder

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pathakanu/ashx/internal/model"
)

// Store runs single-statement operations against the tasks table on one
// connection. Each statement commits on its own.
type Store struct {
	db *gorm.DB
}

// NewStore binds a store to an open connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tasks table when it does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.Reminder{}); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// FetchDueUndone returns the undone reminders whose remind_at equals now.
func (s *Store) FetchDueUndone(ctx context.Context, now string) ([]model.Reminder, error) {
	var due []model.Reminder
	err := s.db.WithContext(ctx).
		Where("remind_at = ? AND done = ?", now, 0).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("fetch due reminders at %s: %w", now, err)
	}
	return due, nil
}

// MarkDone flags one reminder as fired. Rows that are already done are left
// untouched.
func (s *Store) MarkDone(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).
		Model(&model.Reminder{}).
		Where("id = ? AND done = ?", id, 0).
		Update("done", 1).Error
	if err != nil {
		return fmt.Errorf("mark reminder %d done: %w", id, err)
	}
	return nil
}

// Insert stores a new undone reminder.
func (s *Store) Insert(ctx context.Context, task, remindAt string) (*model.Reminder, error) {
	r := &model.Reminder{Task: task, RemindAt: remindAt}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, fmt.Errorf("insert reminder: %w", err)
	}
	return r, nil
}

// ListUndone returns every reminder that has not fired, oldest first.
func (s *Store) ListUndone(ctx context.Context) ([]model.Reminder, error) {
	var pending []model.Reminder
	err := s.db.WithContext(ctx).
		Where("done = ?", 0).
		Order("id ASC").
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("list undone reminders: %w", err)
	}
	return pending, nil
}
