package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"shopfloor-bot/internal/model"
)

// ReportRepository is the append-only ledger of submitted quantities.
type ReportRepository struct {
	db *gorm.DB
}

func NewReportRepository(db *gorm.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

// Submit writes one report. When the report references an assignment
// the write is transactional: the completed counter is advanced only
// while it still fits the target, in a single conditional UPDATE, so
// two concurrent submissions can never jointly exceed the target.
// Returns model.ErrOverAllocation with nothing written on violation.
func (r *ReportRepository) Submit(ctx context.Context, report *model.Report) error {
	db := r.db.WithContext(ctx)

	if report.AssignmentID == nil {
		if err := db.Create(report).Error; err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.WorkAssignment{}).
			Where("id = ? AND completed_quantity + ? <= target_quantity", *report.AssignmentID, report.Quantity).
			UpdateColumn("completed_quantity", gorm.Expr("completed_quantity + ?", report.Quantity))
		if res.Error != nil {
			return fmt.Errorf("reserve quantity: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&model.WorkAssignment{}).Where("id = ?", *report.AssignmentID).Count(&count).Error; err != nil {
				return fmt.Errorf("check assignment: %w", err)
			}
			if count == 0 {
				return model.ErrNotFound
			}
			return model.ErrOverAllocation
		}
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("create report: %w", err)
		}
		return nil
	})
}

func (r *ReportRepository) ListByUser(ctx context.Context, userID uint) ([]model.Report, error) {
	var reports []model.Report
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("date ASC, id ASC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

func (r *ReportRepository) ListAll(ctx context.Context) ([]model.Report, error) {
	var reports []model.Report
	if err := r.db.WithContext(ctx).
		Order("user_id ASC, date ASC, id ASC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// SumForAssignment returns the total quantity attributed to one assignment.
func (r *ReportRepository) SumForAssignment(ctx context.Context, assignmentID uint) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&model.Report{}).
		Where("assignment_id = ?", assignmentID).
		Select("COALESCE(SUM(quantity), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum reports: %w", err)
	}
	return int(total), nil
}

// DeleteOlderThan removes reports strictly older than cutoff and
// returns the number of rows removed. Used by the retention sweep only.
func (r *ReportRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("date < ?", cutoff).Delete(&model.Report{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old reports: %w", res.Error)
	}
	return res.RowsAffected, nil
}
