package model

import "time"

// Report is an immutable record of a quantity of a work type completed
// by a worker on a date. Reports are append-only; only the retention
// sweep ever removes them.
type Report struct {
	ID       uint   `gorm:"primaryKey"`
	UserID   uint   `gorm:"index"`
	WorkType string `gorm:"index"`
	Quantity int
	// Date is the work day, derived from the system clock at commit time.
	Date time.Time `gorm:"index"`
	// AssignmentID is nil for "general" reports that matched no open assignment.
	AssignmentID *uint `gorm:"index"`
	CreatedAt    time.Time
}
