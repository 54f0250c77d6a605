package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shopfloor-bot/internal/model"
)

// AssignmentRepository handles persistence for work assignments.
type AssignmentRepository struct {
	db *gorm.DB
}

func NewAssignmentRepository(db *gorm.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) Create(ctx context.Context, a *model.WorkAssignment) error {
	if err := r.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

func (r *AssignmentRepository) FindByID(ctx context.Context, id uint) (*model.WorkAssignment, error) {
	var a model.WorkAssignment
	if err := r.db.WithContext(ctx).First(&a, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find assignment: %w", err)
	}
	return &a, nil
}

func (r *AssignmentRepository) ListByTask(ctx context.Context, taskID uint) ([]model.WorkAssignment, error) {
	var items []model.WorkAssignment
	if err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	return items, nil
}

// ListForActiveTasks returns assignments of still-active tasks, oldest
// first. workType narrows the query when non-empty; scope filters
// (worker, weekday) are applied by the caller.
func (r *AssignmentRepository) ListForActiveTasks(ctx context.Context, workType string) ([]model.WorkAssignment, error) {
	q := r.db.WithContext(ctx).
		Joins("JOIN tasks ON tasks.id = work_assignments.task_id AND tasks.active = ?", true).
		Order("work_assignments.created_at ASC, work_assignments.id ASC")
	if workType != "" {
		q = q.Where("work_assignments.work_type = ?", workType)
	}
	var items []model.WorkAssignment
	if err := q.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list open assignments: %w", err)
	}
	return items, nil
}
