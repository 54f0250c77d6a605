package model

import "time"

// Task is an admin-defined unit of work split into work assignments.
// A task is deactivated, never deleted or reactivated.
type Task struct {
	ID          uint `gorm:"primaryKey"`
	Description string
	CreatorID   uint `gorm:"index"`
	Active      bool `gorm:"default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Assignments []WorkAssignment `gorm:"foreignKey:TaskID"`
}
