// Package dialog drives one strictly sequential conversation per user:
// each flow collects one validated field per message into a typed draft
// and performs exactly one store operation on completion.
package dialog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/service"
)

// Flow names accepted by Start.
const (
	FlowNewReport  = "new_report"
	FlowNewTask    = "new_task"
	FlowAssignWork = "assign_work"
	FlowManageUser = "manage_user"
)

type stageID int

// stageDone tells the engine to commit the draft.
const stageDone stageID = -1

// Prompt is what a stage asks the user.
type Prompt struct {
	Text string
	// Options become keyboard rows; empty means free-form text input.
	Options [][]string
}

// Reply is what the engine answers with.
type Reply struct {
	Text    string
	Options [][]string
	// Done signals the session ended: committed, aborted or cancelled.
	Done bool
}

// Stage declares one step: how to prompt for the field and how to
// validate and store one input. Handle returns the next stage or a
// *model.ValidationError that leaves the session untouched.
type Stage struct {
	Ask    func(ctx context.Context, s *Session) (Prompt, error)
	Handle func(ctx context.Context, s *Session, text string) (stageID, error)
}

// Flow is a declarative state table plus a single commit operation.
type Flow struct {
	Name      string
	AdminOnly bool
	Start     stageID
	Stages    map[stageID]Stage
	NewDraft  func() any
	// Commit executes the one store call for the assembled draft and
	// returns the user confirmation plus an optional supervisor notice.
	Commit func(ctx context.Context, s *Session) (confirm, notice string, err error)
}

// Session is one user's in-progress flow.
type Session struct {
	// User is a snapshot taken at flow entry. The role is resolved once
	// here and carried through the flow instead of being re-checked
	// against a raw id at every step.
	User  model.User
	flow  *Flow
	stage stageID
	draft any
}

// Deps are the collaborators flows commit against.
type Deps struct {
	Identity *service.IdentityService
	Plans    *service.PlanService
	Reports  *service.ReportService
	// Notify pushes a text to the supervisor channel, fire-and-forget.
	Notify func(text string)
	Now    func() time.Time
}

// Engine holds one session per Telegram user id.
type Engine struct {
	mu       sync.Mutex
	deps     Deps
	flows    map[string]*Flow
	sessions map[int64]*Session
}

func New(deps Deps) *Engine {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notify == nil {
		deps.Notify = func(string) {}
	}
	e := &Engine{
		deps:     deps,
		flows:    make(map[string]*Flow),
		sessions: make(map[int64]*Session),
	}
	for _, f := range []*Flow{
		newReportFlow(deps),
		newTaskFlow(deps),
		newAssignFlow(deps),
		newManageUserFlow(deps),
	} {
		e.flows[f.Name] = f
	}
	return e
}

// Start opens a flow for the user. A flow already in progress is
// discarded and the user is told so. Inactive users and non-admins on
// admin flows get model.ErrAccessDenied and no session.
func (e *Engine) Start(ctx context.Context, user model.User, flowName string) (Reply, error) {
	flow, ok := e.flows[flowName]
	if !ok {
		return Reply{}, fmt.Errorf("unknown flow %q", flowName)
	}
	if !user.Active {
		return Reply{}, model.ErrAccessDenied
	}
	if flow.AdminOnly && !user.IsAdmin() {
		return Reply{}, model.ErrAccessDenied
	}

	s := &Session{User: user, flow: flow, stage: flow.Start, draft: flow.NewDraft()}

	e.mu.Lock()
	_, replaced := e.sessions[user.TelegramID]
	e.sessions[user.TelegramID] = s
	e.mu.Unlock()

	prompt, err := flow.Stages[flow.Start].Ask(ctx, s)
	if err != nil {
		e.drop(user.TelegramID)
		log.Printf("[warn] flow=%s stage=%d user=%d ask: %v", flow.Name, flow.Start, user.ID, err)
		return Reply{}, err
	}

	text := prompt.Text
	if replaced {
		text = "⏪ Предыдущий диалог сброшен.\n\n" + text
	}
	log.Printf("[info] flow started flow=%s user=%d", flow.Name, user.ID)
	return Reply{Text: text, Options: withCancel(prompt.Options)}, nil
}

// Active reports whether the user has a flow in progress.
func (e *Engine) Active(telegramID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[telegramID]
	return ok
}

// Cancel discards the session and every accumulated field.
func (e *Engine) Cancel(telegramID int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.sessions[telegramID]
	delete(e.sessions, telegramID)
	return ok
}

// Handle feeds one user input into the active session. The second
// return is false when the user has no session.
func (e *Engine) Handle(ctx context.Context, telegramID int64, text string) (Reply, bool) {
	e.mu.Lock()
	s := e.sessions[telegramID]
	e.mu.Unlock()
	if s == nil {
		return Reply{}, false
	}

	text = strings.TrimSpace(text)
	if isCancelInput(text) {
		e.drop(telegramID)
		log.Printf("[info] flow cancelled flow=%s stage=%d user=%d", s.flow.Name, s.stage, s.User.ID)
		return Reply{Text: "⏪ Диалог отменён, данные не сохранены.", Done: true}, true
	}

	stage := s.flow.Stages[s.stage]
	next, err := stage.Handle(ctx, s, text)
	if err != nil {
		return e.replyForError(ctx, s, err), true
	}
	if next == stageDone {
		return e.commit(ctx, s), true
	}

	prev := s.stage
	s.stage = next
	prompt, err := s.flow.Stages[next].Ask(ctx, s)
	if err != nil {
		s.stage = prev
		log.Printf("[warn] flow=%s stage=%d user=%d ask: %v", s.flow.Name, next, s.User.ID, err)
		return Reply{Text: msgStoreRetry}, true
	}
	return Reply{Text: prompt.Text, Options: withCancel(prompt.Options)}, true
}

const (
	msgStoreRetry = "⚠️ Временная ошибка хранилища. Повтори последний шаг чуть позже."
	msgNotFound   = "🔍 Запись не найдена, диалог прерван. Начни заново."
	msgDenied     = "⛔ Доступ закрыт. Обратись к администратору."
)

// replyForError converts a stage or commit error into a user reply.
// Validation and over-allocation keep the session (one re-prompt);
// missing records and denied access abort it; anything else is a
// transient store failure that keeps the accumulated data.
func (e *Engine) replyForError(ctx context.Context, s *Session, err error) Reply {
	log.Printf("[info] flow=%s stage=%d user=%d: %v", s.flow.Name, s.stage, s.User.ID, err)

	var ve *model.ValidationError
	switch {
	case errors.As(err, &ve):
		return Reply{Text: "⚠️ " + ve.Msg + e.reprompt(ctx, s), Options: e.currentOptions(ctx, s)}
	case errors.Is(err, model.ErrOverAllocation):
		return Reply{
			Text:    "🚫 Столько принять нельзя: превышается план задания. Ничего не записано." + e.reprompt(ctx, s),
			Options: e.currentOptions(ctx, s),
		}
	case errors.Is(err, model.ErrNotFound):
		e.drop(s.User.TelegramID)
		return Reply{Text: msgNotFound, Done: true}
	case errors.Is(err, model.ErrAccessDenied):
		e.drop(s.User.TelegramID)
		return Reply{Text: msgDenied, Done: true}
	default:
		return Reply{Text: msgStoreRetry}
	}
}

// commit runs the flow's single store call. On success the session is
// cleared and the notice (if any) goes to the supervisor channel; on
// failure the session stays at the pre-commit stage with data retained.
func (e *Engine) commit(ctx context.Context, s *Session) Reply {
	confirm, notice, err := s.flow.Commit(ctx, s)
	if err != nil {
		return e.replyForError(ctx, s, err)
	}
	e.drop(s.User.TelegramID)
	log.Printf("[info] flow committed flow=%s user=%d", s.flow.Name, s.User.ID)
	if notice != "" {
		e.deps.Notify(notice)
	}
	return Reply{Text: confirm, Done: true}
}

// reprompt re-asks the current stage so the error and the question
// arrive as one message.
func (e *Engine) reprompt(ctx context.Context, s *Session) string {
	prompt, err := s.flow.Stages[s.stage].Ask(ctx, s)
	if err != nil {
		return ""
	}
	return "\n\n" + prompt.Text
}

func (e *Engine) currentOptions(ctx context.Context, s *Session) [][]string {
	prompt, err := s.flow.Stages[s.stage].Ask(ctx, s)
	if err != nil {
		return withCancel(nil)
	}
	return withCancel(prompt.Options)
}

func (e *Engine) drop(telegramID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.sessions, telegramID)
}
