package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"shopfloor-bot/internal/config"
	"shopfloor-bot/internal/dialog"
	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/service"
)

const (
	menuLabelNewReport = "📦 Новый отчёт"
	menuLabelMyStats   = "📈 Мои отчёты"
	menuLabelHelp      = "ℹ️ Помощь"
	menuLabelNewTask   = "🆕 Задача"
	menuLabelAssign    = "🧩 Задание"
	menuLabelUsers     = "👥 Люди"
	menuLabelSummary   = "📊 Сводка"
)

// msgDenied is the fixed reply for users off the allow-list. No session
// state is ever created for them.
const msgDenied = "⛔ Доступ пока закрыт. Дождись, когда администратор допустит тебя к работе."

// Bot aggregates the Telegram API with the conversation engine and services.
type Bot struct {
	api       *tgbotapi.BotAPI
	identity  *service.IdentityService
	summaries *service.SummaryService
	plans     *service.PlanService
	engine    *dialog.Engine
	config    *config.Config
}

func New(token string, identity *service.IdentityService, summaries *service.SummaryService, plans *service.PlanService, cfg *config.Config) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("[info] bot authorized on account %s", api.Self.UserName)

	return &Bot{
		api:       api,
		identity:  identity,
		summaries: summaries,
		plans:     plans,
		config:    cfg,
	}, nil
}

// AttachEngine wires the conversation engine. Separate from New because
// the engine's notifier delivers through this bot.
func (b *Bot) AttachEngine(engine *dialog.Engine) {
	b.engine = engine
}

// SendToAdmin delivers one message to the supervisor channel.
func (b *Bot) SendToAdmin(text string) error {
	msg := tgbotapi.NewMessage(b.config.AdminID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	_, err := b.api.Send(msg)
	return err
}

// Start begins polling updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	log.Println("[info] start polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		if update.Message == nil {
			continue
		}
		if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
			continue
		}
		if err := b.handleMessage(ctx, update.Message); err != nil {
			log.Printf("handle message: %v", err)
		}
	}

	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	// Registration is idempotent; every contact refreshes the name.
	user, err := b.identity.RegisterOrUpdate(ctx, msg.From.ID, displayName(msg.From))
	if err != nil {
		return b.sendPlain(msg.Chat.ID, "⚠️ Временная ошибка, попробуй ещё раз.")
	}

	if msg.IsCommand() {
		log.Printf("[info] command from %d: /%s %s", msg.From.ID, msg.Command(), msg.CommandArguments())
		return b.handleCommand(ctx, msg, user)
	}

	if handled, err := b.handleMenuAlias(ctx, msg, user); handled {
		return err
	}

	if b.engine != nil && b.engine.Active(msg.From.ID) {
		reply, _ := b.engine.Handle(ctx, msg.From.ID, msg.Text)
		return b.sendReply(msg.Chat.ID, user, reply)
	}

	if !user.Active {
		return b.sendPlain(msg.Chat.ID, msgDenied)
	}

	return b.sendMenu(msg.Chat.ID, user, "Я не понял сообщение. Нажми кнопку меню или загляни в /help.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(msg, user)
	case "cancel":
		if b.engine != nil && b.engine.Cancel(msg.From.ID) {
			return b.sendMenu(msg.Chat.ID, user, "⏪ Диалог отменён, данные не сохранены.")
		}
		return b.sendMenu(msg.Chat.ID, user, "Сейчас нет активного диалога.")
	}

	// Everything below this point is allow-list gated.
	if !user.Active {
		return b.sendPlain(msg.Chat.ID, msgDenied)
	}

	switch msg.Command() {
	case "help":
		return b.handleHelp(msg, user)
	case "report":
		return b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowNewReport)
	case "mystats":
		return b.handleMyStats(ctx, msg, user)
	case "progress":
		return b.handleProgress(ctx, msg, user)
	case "newtask":
		return b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowNewTask)
	case "assign":
		return b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowAssignWork)
	case "users":
		return b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowManageUser)
	case "closetask":
		return b.handleCloseTask(ctx, msg, user)
	case "summary":
		return b.handleSummary(ctx, msg, user)
	default:
		return b.sendMenu(msg.Chat.ID, user, "Команда не поддерживается. Загляни в /help.")
	}
}

func (b *Bot) handleStart(msg *tgbotapi.Message, user *model.User) error {
	if !user.Active {
		return b.sendPlain(msg.Chat.ID, "👋 Привет! Заявка на доступ принята.\n"+msgDenied)
	}

	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = "коллега"
	}
	text := fmt.Sprintf("👋 Привет, %s!\n<b>Я учитываю выработку цеха: отчёты, задания, прогресс.</b>\n\nНажми кнопку меню или /help для списка команд.", html.EscapeString(name))
	return b.sendMenu(msg.Chat.ID, user, text)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message, user *model.User) error {
	text := "ℹ️ <b>Подсказки</b>\n" +
		"• /report — сдать отчёт о выработке\n" +
		"• /mystats — мои отчёты по дням\n" +
		"• /progress &lt;номер&gt; — прогресс задачи\n" +
		"• /cancel — отменить текущий ввод"
	if user.IsAdmin() {
		text += "\n\n👑 <b>Администратору</b>\n" +
			"• /newtask — создать задачу\n" +
			"• /assign — добавить задание к задаче\n" +
			"• /closetask &lt;номер&gt; — закрыть задачу\n" +
			"• /users — допуски, роли, телефоны\n" +
			"• /summary — сводка по всем отчётам"
	}
	return b.sendMenu(msg.Chat.ID, user, text)
}

func (b *Bot) startFlow(ctx context.Context, chatID int64, user *model.User, flowName string) error {
	reply, err := b.engine.Start(ctx, *user, flowName)
	if err != nil {
		if errors.Is(err, model.ErrAccessDenied) {
			return b.sendPlain(chatID, msgDenied)
		}
		return b.sendMenu(chatID, user, "⚠️ Временная ошибка хранилища, попробуй ещё раз.")
	}
	return b.sendReply(chatID, user, reply)
}

func (b *Bot) handleMyStats(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	text, err := b.summaries.WorkerReportText(ctx, user)
	if err != nil {
		return b.sendMenu(msg.Chat.ID, user, fmt.Sprintf("Не удалось собрать отчёты: %s", html.EscapeString(err.Error())))
	}
	return b.sendMenu(msg.Chat.ID, user, text)
}

func (b *Bot) handleProgress(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendMenu(msg.Chat.ID, user, "Укажи номер задачи: /progress 3")
	}
	taskID, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return b.sendMenu(msg.Chat.ID, user, "Номер задачи должен быть числом.")
	}
	text, err := b.summaries.ProgressText(ctx, uint(taskID))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return b.sendMenu(msg.Chat.ID, user, "Задача не найдена.")
		}
		return b.sendMenu(msg.Chat.ID, user, fmt.Sprintf("Ошибка: %s", html.EscapeString(err.Error())))
	}
	return b.sendMenu(msg.Chat.ID, user, text)
}

func (b *Bot) handleCloseTask(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	args := strings.TrimSpace(msg.CommandArguments())
	if args == "" {
		return b.sendMenu(msg.Chat.ID, user, "Укажи номер задачи: /closetask 3")
	}
	taskID, err := strconv.ParseUint(args, 10, 64)
	if err != nil {
		return b.sendMenu(msg.Chat.ID, user, "Номер задачи должен быть числом.")
	}
	if err := b.plans.DeactivateTask(ctx, user, uint(taskID)); err != nil {
		switch {
		case errors.Is(err, model.ErrAccessDenied):
			return b.sendPlain(msg.Chat.ID, msgDenied)
		case errors.Is(err, model.ErrNotFound):
			return b.sendMenu(msg.Chat.ID, user, "Задача не найдена.")
		default:
			return b.sendMenu(msg.Chat.ID, user, fmt.Sprintf("Ошибка: %s", html.EscapeString(err.Error())))
		}
	}
	return b.sendMenu(msg.Chat.ID, user, fmt.Sprintf("📕 Задача #%d закрыта. Новые отчёты к ней не привязываются.", taskID))
}

func (b *Bot) handleSummary(ctx context.Context, msg *tgbotapi.Message, user *model.User) error {
	if !user.IsAdmin() {
		return b.sendPlain(msg.Chat.ID, msgDenied)
	}
	text, err := b.summaries.AdminSummaryText(ctx)
	if err != nil {
		return b.sendMenu(msg.Chat.ID, user, fmt.Sprintf("Не удалось собрать сводку: %s", html.EscapeString(err.Error())))
	}
	return b.sendMenu(msg.Chat.ID, user, text)
}

// SendAdminSummary pushes the aggregated summary to the supervisor
// channel. Wired to the daily cron job.
func (b *Bot) SendAdminSummary(ctx context.Context) error {
	text, err := b.summaries.AdminSummaryText(ctx)
	if err != nil {
		return err
	}
	return b.SendToAdmin(text)
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message, user *model.User) (bool, error) {
	if !user.Active {
		return false, nil
	}
	switch strings.TrimSpace(msg.Text) {
	case menuLabelNewReport:
		return true, b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowNewReport)
	case menuLabelMyStats:
		return true, b.handleMyStats(ctx, msg, user)
	case menuLabelHelp:
		return true, b.handleHelp(msg, user)
	case menuLabelNewTask:
		return true, b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowNewTask)
	case menuLabelAssign:
		return true, b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowAssignWork)
	case menuLabelUsers:
		return true, b.startFlow(ctx, msg.Chat.ID, user, dialog.FlowManageUser)
	case menuLabelSummary:
		return true, b.handleSummary(ctx, msg, user)
	default:
		return false, nil
	}
}

// sendReply renders an engine reply: options become a one-time reply
// keyboard, a finished dialog restores the main menu.
func (b *Bot) sendReply(chatID int64, user *model.User, reply dialog.Reply) error {
	if reply.Text == "" {
		return nil
	}
	if reply.Done {
		return b.sendMenu(chatID, user, reply.Text)
	}
	msg := tgbotapi.NewMessage(chatID, reply.Text)
	msg.ParseMode = tgbotapi.ModeHTML
	if len(reply.Options) > 0 {
		msg.ReplyMarkup = optionsKeyboard(reply.Options)
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendMenu(chatID int64, user *model.User, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard(user)
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendPlain(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	_, err := b.api.Send(msg)
	return err
}

func optionsKeyboard(options [][]string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(options))
	for _, option := range options {
		row := make([]tgbotapi.KeyboardButton, 0, len(option))
		for _, label := range option {
			row = append(row, tgbotapi.NewKeyboardButton(label))
		}
		rows = append(rows, row)
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func mainMenuKeyboard(user *model.User) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuLabelNewReport),
			tgbotapi.NewKeyboardButton(menuLabelMyStats),
		),
	}
	if user.IsAdmin() {
		rows = append(rows,
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(menuLabelNewTask),
				tgbotapi.NewKeyboardButton(menuLabelAssign),
			),
			tgbotapi.NewKeyboardButtonRow(
				tgbotapi.NewKeyboardButton(menuLabelUsers),
				tgbotapi.NewKeyboardButton(menuLabelSummary),
			),
		)
	}
	rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(menuLabelHelp)))

	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = false
	return kb
}

func displayName(from *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(from.FirstName) + " " + strings.TrimSpace(from.LastName))
	if name == "" {
		name = strings.TrimSpace(from.UserName)
	}
	return name
}
