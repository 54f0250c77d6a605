package dialog

import (
	"context"
	"errors"
	"fmt"
	"html"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/service"
)

const (
	stageUserPick stageID = iota + 40
	stageUserAction
	stageUserPhone
)

const (
	btnApprove  = "✅ Допустить"
	btnBlock    = "🚫 Отключить"
	btnPromote  = "⭐ Сделать админом"
	btnSetPhone = "📞 Указать телефон"

	actApprove  = "approve"
	actBlock    = "block"
	actPromote  = "promote"
	actSetPhone = "set_phone"
)

type manageDraft struct {
	userID uint
	name   string
	action string
	phone  string
}

// newManageUserFlow lets an admin approve, deactivate or promote a user
// and keep a contact phone on file.
func newManageUserFlow(deps Deps) *Flow {
	return &Flow{
		Name:      FlowManageUser,
		AdminOnly: true,
		Start:     stageUserPick,
		NewDraft:  func() any { return &manageDraft{} },
		Stages: map[stageID]Stage{
			stageUserPick: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					users, err := deps.Identity.ListAll(ctx)
					if err != nil {
						return Prompt{}, err
					}
					labels := make([]string, 0, len(users))
					for _, u := range users {
						labels = append(labels, fmt.Sprintf("#%d · %s · %s", u.ID, shorten(displayName(u), 20), statusLabel(u)))
					}
					return Prompt{
						Text:    "👥 Управление пользователями.\n<b>Шаг 1:</b> кого меняем?",
						Options: keyboardRows(labels, 1),
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					id, err := parseIDOption(text)
					if err != nil {
						return 0, err
					}
					user, err := deps.Identity.FindByID(ctx, id)
					if err != nil {
						if errors.Is(err, model.ErrNotFound) {
							return 0, model.Invalid("Такого пользователя нет, выбери из списка.")
						}
						return 0, err
					}
					d := s.draft.(*manageDraft)
					d.userID = user.ID
					d.name = displayName(*user)
					return stageUserAction, nil
				},
			},
			stageUserAction: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					d := s.draft.(*manageDraft)
					return Prompt{
						Text: fmt.Sprintf("<b>Шаг 2:</b> что сделать с «%s»?", html.EscapeString(d.name)),
						Options: [][]string{
							{btnApprove, btnBlock},
							{btnPromote, btnSetPhone},
						},
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					d := s.draft.(*manageDraft)
					switch text {
					case btnApprove:
						d.action = actApprove
					case btnBlock:
						d.action = actBlock
					case btnPromote:
						d.action = actPromote
					case btnSetPhone:
						d.action = actSetPhone
						return stageUserPhone, nil
					default:
						return 0, model.Invalid("Выбери действие кнопкой.")
					}
					return stageDone, nil
				},
			},
			stageUserPhone: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{Text: "📞 Введи телефон: +7XXXXXXXXXX или 8XXXXXXXXXX."}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					if err := service.ValidatePhone(text); err != nil {
						return 0, err
					}
					s.draft.(*manageDraft).phone = text
					return stageDone, nil
				},
			},
		},
		Commit: func(ctx context.Context, s *Session) (string, string, error) {
			d := s.draft.(*manageDraft)
			var err error
			var confirm string
			switch d.action {
			case actApprove:
				err = deps.Identity.Approve(ctx, &s.User, d.userID)
				confirm = fmt.Sprintf("✅ «%s» допущен к работе.", html.EscapeString(d.name))
			case actBlock:
				err = deps.Identity.Deactivate(ctx, &s.User, d.userID)
				confirm = fmt.Sprintf("🚫 «%s» отключён.", html.EscapeString(d.name))
			case actPromote:
				err = deps.Identity.PromoteToAdmin(ctx, &s.User, d.userID)
				confirm = fmt.Sprintf("⭐ «%s» теперь администратор.", html.EscapeString(d.name))
			case actSetPhone:
				err = deps.Identity.SetPhone(ctx, &s.User, d.userID, d.phone)
				confirm = fmt.Sprintf("📞 Телефон для «%s» сохранён.", html.EscapeString(d.name))
			default:
				return "", "", model.Invalid("Действие не выбрано.")
			}
			if err != nil {
				return "", "", err
			}
			return confirm, "", nil
		},
	}
}

func displayName(u model.User) string {
	if u.Name != "" {
		return u.Name
	}
	return fmt.Sprintf("пользователь %d", u.TelegramID)
}

func statusLabel(u model.User) string {
	role := "рабочий"
	if u.IsAdmin() {
		role = "админ"
	}
	if !u.Active {
		return role + ", ожидает"
	}
	return role
}
