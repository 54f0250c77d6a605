package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"shopfloor-bot/internal/model"
)

// UserRepository handles persistence for users.
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert finds or creates a user by TelegramID and refreshes the display
// name. Calling it twice with identical inputs leaves exactly one record.
func (r *UserRepository) Upsert(ctx context.Context, telegramID int64, name string) (*model.User, error) {
	var user model.User
	db := r.db.WithContext(ctx)
	err := db.Where("telegram_id = ?", telegramID).First(&user).Error
	switch {
	case err == nil:
		if user.Name != name && name != "" {
			if err := db.Model(&user).Update("name", name).Error; err != nil {
				return nil, fmt.Errorf("update user: %w", err)
			}
			user.Name = name
		}
		return &user, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		user = model.User{
			TelegramID: telegramID,
			Name:       name,
			Role:       model.RoleWorker,
			Active:     false,
		}
		if err := db.Create(&user).Error; err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return &user, nil
	default:
		return nil, fmt.Errorf("find user: %w", err)
	}
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) ListActiveWorkers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	if err := r.db.WithContext(ctx).
		Where("active = ? AND role = ?", true, model.RoleWorker).
		Order("name ASC, id ASC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	return users, nil
}

// updateField updates one column on an existing user.
func (r *UserRepository) updateField(ctx context.Context, id uint, column string, value interface{}) error {
	res := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return fmt.Errorf("update user %s: %w", column, res.Error)
	}
	if res.RowsAffected == 0 {
		// Distinguish a missing row from a no-op update.
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if count == 0 {
			return model.ErrNotFound
		}
	}
	return nil
}

func (r *UserRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.updateField(ctx, id, "active", active)
}

func (r *UserRepository) SetRole(ctx context.Context, id uint, role model.Role) error {
	return r.updateField(ctx, id, "role", role)
}

func (r *UserRepository) SetPhone(ctx context.Context, id uint, phone string) error {
	return r.updateField(ctx, id, "phone", phone)
}
