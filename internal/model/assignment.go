package model

import (
	"strconv"
	"strings"
	"time"
)

// WorkAssignment is a (task, work type, target quantity) triple,
// optionally scoped to a single worker or to certain weekdays.
// Immutable after creation except for the derived completed counter.
type WorkAssignment struct {
	ID                uint   `gorm:"primaryKey"`
	TaskID            uint   `gorm:"index"`
	WorkType          string `gorm:"index"`
	TargetQuantity    int
	CompletedQuantity int `gorm:"default:0"`
	// WorkerID limits the assignment to one worker; nil means any worker.
	WorkerID *uint `gorm:"index"`
	// Weekdays is a comma-separated list of ISO weekday numbers
	// (1=Mon … 7=Sun); empty means every day.
	Weekdays  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the assignment still accepts quantity.
func (a *WorkAssignment) Open() bool {
	return a.CompletedQuantity < a.TargetQuantity
}

// Remaining returns the quantity still missing to the target.
func (a *WorkAssignment) Remaining() int {
	if r := a.TargetQuantity - a.CompletedQuantity; r > 0 {
		return r
	}
	return 0
}

// MatchesWorker reports whether the assignment is open to the given user id.
func (a *WorkAssignment) MatchesWorker(userID uint) bool {
	return a.WorkerID == nil || *a.WorkerID == userID
}

// ActiveOn reports whether the assignment applies on the given weekday.
func (a *WorkAssignment) ActiveOn(day time.Weekday) bool {
	if strings.TrimSpace(a.Weekdays) == "" {
		return true
	}
	iso := ISOWeekday(day)
	for _, part := range strings.Split(a.Weekdays, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err == nil && n == iso {
			return true
		}
	}
	return false
}

// ISOWeekday maps time.Weekday (Sunday=0) to ISO numbering (Monday=1 … Sunday=7).
func ISOWeekday(day time.Weekday) int {
	if day == time.Sunday {
		return 7
	}
	return int(day)
}
