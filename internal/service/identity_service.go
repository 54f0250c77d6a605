package service

import (
	"context"
	"fmt"
	"log"
	"regexp"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/repository"
)

// phonePattern accepts +7XXXXXXXXXX or 8XXXXXXXXXX.
var phonePattern = regexp.MustCompile(`^(?:\+7|8)\d{10}$`)

// ValidatePhone checks a contact phone against the accepted formats.
func ValidatePhone(phone string) error {
	if !phonePattern.MatchString(phone) {
		return model.Invalid("Телефон должен быть в формате +7XXXXXXXXXX или 8XXXXXXXXXX.")
	}
	return nil
}

// IdentityService tracks known users, their role and the allow-list.
type IdentityService struct {
	users *repository.UserRepository
}

func NewIdentityService(users *repository.UserRepository) *IdentityService {
	return &IdentityService{users: users}
}

// RegisterOrUpdate is an idempotent upsert keyed by Telegram id. New
// users start as inactive workers and wait for admin approval.
func (s *IdentityService) RegisterOrUpdate(ctx context.Context, telegramID int64, name string) (*model.User, error) {
	return s.users.Upsert(ctx, telegramID, name)
}

// SeedAdmin makes sure the externally supplied admin id exists as an
// active admin. Called once at startup.
func (s *IdentityService) SeedAdmin(ctx context.Context, telegramID int64) (*model.User, error) {
	user, err := s.users.Upsert(ctx, telegramID, "")
	if err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	if user.Role != model.RoleAdmin {
		if err := s.users.SetRole(ctx, user.ID, model.RoleAdmin); err != nil {
			return nil, fmt.Errorf("seed admin role: %w", err)
		}
		user.Role = model.RoleAdmin
	}
	if !user.Active {
		if err := s.users.SetActive(ctx, user.ID, true); err != nil {
			return nil, fmt.Errorf("seed admin active: %w", err)
		}
		user.Active = true
	}
	return user, nil
}

func (s *IdentityService) FindByTelegramID(ctx context.Context, telegramID int64) (*model.User, error) {
	return s.users.FindByTelegramID(ctx, telegramID)
}

func (s *IdentityService) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *IdentityService) ListAll(ctx context.Context) ([]model.User, error) {
	return s.users.ListAll(ctx)
}

func (s *IdentityService) ListActiveWorkers(ctx context.Context) ([]model.User, error) {
	return s.users.ListActiveWorkers(ctx)
}

func (s *IdentityService) requireAdmin(actor *model.User) error {
	if actor == nil || !actor.Active || !actor.IsAdmin() {
		return model.ErrAccessDenied
	}
	return nil
}

// Approve puts a user on the allow-list.
func (s *IdentityService) Approve(ctx context.Context, actor *model.User, userID uint) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if err := s.users.SetActive(ctx, userID, true); err != nil {
		return err
	}
	log.Printf("[info] user approved id=%d by=%d", userID, actor.ID)
	return nil
}

// Deactivate takes a user off the allow-list, blocking every flow entry point.
func (s *IdentityService) Deactivate(ctx context.Context, actor *model.User, userID uint) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if err := s.users.SetActive(ctx, userID, false); err != nil {
		return err
	}
	log.Printf("[info] user deactivated id=%d by=%d", userID, actor.ID)
	return nil
}

// PromoteToAdmin grants admin role.
func (s *IdentityService) PromoteToAdmin(ctx context.Context, actor *model.User, userID uint) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if err := s.users.SetRole(ctx, userID, model.RoleAdmin); err != nil {
		return err
	}
	log.Printf("[info] user promoted id=%d by=%d", userID, actor.ID)
	return nil
}

// SetPhone stores a validated contact phone on the user.
func (s *IdentityService) SetPhone(ctx context.Context, actor *model.User, userID uint, phone string) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if err := ValidatePhone(phone); err != nil {
		return err
	}
	return s.users.SetPhone(ctx, userID, phone)
}
