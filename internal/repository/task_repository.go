package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shopfloor-bot/internal/model"
)

// TaskRepository handles persistence for tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *TaskRepository) FindByID(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find task: %w", err)
	}
	return &task, nil
}

func (r *TaskRepository) ListActive(ctx context.Context) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("created_at ASC, id ASC").
		Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Deactivate flips the active flag off. Idempotent: deactivating an
// already inactive task is a no-op; a missing task is ErrNotFound.
func (r *TaskRepository) Deactivate(ctx context.Context, id uint) error {
	var task model.Task
	db := r.db.WithContext(ctx)
	if err := db.First(&task, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.ErrNotFound
		}
		return fmt.Errorf("find task: %w", err)
	}
	if !task.Active {
		return nil
	}
	if err := db.Model(&task).Update("active", false).Error; err != nil {
		return fmt.Errorf("deactivate task: %w", err)
	}
	return nil
}
