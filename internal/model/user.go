package model

import "time"

// Role разделяет доступ: админ управляет задачами и людьми, рабочий сдаёт отчёты.
type Role string

const (
	RoleWorker Role = "worker"
	RoleAdmin  Role = "admin"
)

// User stores Telegram user metadata together with access data.
// Users are created on first contact and never deleted; an admin
// toggles the active flag and the role.
type User struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex"`
	Name       string `gorm:"index"`
	Phone      string
	Role       Role `gorm:"default:worker"`
	Active     bool `gorm:"default:false"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (u *User) IsAdmin() bool { return u.Role == RoleAdmin }
