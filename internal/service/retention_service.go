package service

import (
	"context"
	"log"
	"time"

	"shopfloor-bot/internal/repository"
)

// RetentionService removes report records older than the configured
// window. It only ever deletes rows strictly older than the cutoff, so
// an in-flight submission (dated today) can never be swept.
type RetentionService struct {
	reports *repository.ReportRepository
	window  time.Duration
}

func NewRetentionService(reports *repository.ReportRepository, retentionDays int) *RetentionService {
	return &RetentionService{
		reports: reports,
		window:  time.Duration(retentionDays) * 24 * time.Hour,
	}
}

// Sweep deletes everything beyond the retention window.
func (s *RetentionService) Sweep(ctx context.Context) error {
	cutoff := time.Now().Add(-s.window)
	removed, err := s.reports.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	if removed > 0 {
		log.Printf("[info] retention sweep removed %d reports older than %s", removed, cutoff.Format("2006-01-02"))
	}
	return nil
}
