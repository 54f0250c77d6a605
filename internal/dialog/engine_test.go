package dialog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/repository"
	"shopfloor-bot/internal/service"
)

type testEnv struct {
	engine   *Engine
	identity *service.IdentityService
	plans    *service.PlanService
	reports  *service.ReportService

	admin  model.User
	worker model.User

	notices *[]string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	identity := service.NewIdentityService(userRepo)
	plans := service.NewPlanService(repository.NewTaskRepository(db), repository.NewAssignmentRepository(db), model.DefaultCatalog())
	reports := service.NewReportService(repository.NewReportRepository(db), userRepo, plans)

	ctx := context.Background()
	admin, err := identity.SeedAdmin(ctx, 1001)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	worker, err := identity.RegisterOrUpdate(ctx, 2002, "Вася Столяров")
	if err != nil {
		t.Fatalf("register worker: %v", err)
	}
	if err := identity.Approve(ctx, admin, worker.ID); err != nil {
		t.Fatalf("approve worker: %v", err)
	}
	worker, err = identity.FindByID(ctx, worker.ID)
	if err != nil {
		t.Fatalf("reload worker: %v", err)
	}

	notices := &[]string{}
	engine := New(Deps{
		Identity: identity,
		Plans:    plans,
		Reports:  reports,
		Notify:   func(text string) { *notices = append(*notices, text) },
		Now:      time.Now,
	})

	return &testEnv{
		engine:   engine,
		identity: identity,
		plans:    plans,
		reports:  reports,
		admin:    *admin,
		worker:   *worker,
		notices:  notices,
	}
}

func (e *testEnv) newAssignment(t *testing.T, workType string, target int) *model.WorkAssignment {
	t.Helper()
	ctx := context.Background()
	task, err := e.plans.CreateTask(ctx, &e.admin, "Партия 7")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	a, err := e.plans.AddAssignment(ctx, &e.admin, service.AssignmentInput{
		TaskID:         task.ID,
		WorkType:       workType,
		TargetQuantity: target,
	})
	if err != nil {
		t.Fatalf("add assignment: %v", err)
	}
	return a
}

func (e *testEnv) handle(t *testing.T, telegramID int64, text string) Reply {
	t.Helper()
	reply, ok := e.engine.Handle(context.Background(), telegramID, text)
	if !ok {
		t.Fatalf("no session for %d while sending %q", telegramID, text)
	}
	return reply
}

func TestStartDeniesInactiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending, err := env.identity.RegisterOrUpdate(ctx, 3003, "Новичок")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := env.engine.Start(ctx, *pending, FlowNewReport); !errors.Is(err, model.ErrAccessDenied) {
		t.Fatalf("Start = %v, want ErrAccessDenied", err)
	}
	if env.engine.Active(pending.TelegramID) {
		t.Error("denied start must not leave a session behind")
	}
}

func TestStartDeniesWorkerOnAdminFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, flow := range []string{FlowNewTask, FlowAssignWork, FlowManageUser} {
		if _, err := env.engine.Start(ctx, env.worker, flow); !errors.Is(err, model.ErrAccessDenied) {
			t.Errorf("Start(%s) by worker = %v, want ErrAccessDenied", flow, err)
		}
	}
	if env.engine.Active(env.worker.TelegramID) {
		t.Error("denied starts must not leave a session")
	}
}

func TestReportFlowHappyPath(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newAssignment(t, "Sanding", 50)

	reply, err := env.engine.Start(ctx, env.worker, FlowNewReport)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !strings.Contains(reply.Text, "Шаг 1") {
		t.Errorf("start prompt = %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, "Sanding")
	if !strings.Contains(reply.Text, "Шаг 2") {
		t.Errorf("after work type: %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, fmt.Sprintf("#%d", a.ID))
	if !strings.Contains(reply.Text, "Шаг 3") {
		t.Errorf("after assignment: %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, "20")
	if !reply.Done {
		t.Fatalf("flow not done after quantity: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "✅") {
		t.Errorf("confirmation = %q", reply.Text)
	}
	if env.engine.Active(env.worker.TelegramID) {
		t.Error("session must be dropped after commit")
	}

	fresh, err := env.plans.FindAssignment(ctx, a.ID)
	if err != nil {
		t.Fatalf("FindAssignment: %v", err)
	}
	if fresh.CompletedQuantity != 20 {
		t.Errorf("CompletedQuantity = %d, want 20", fresh.CompletedQuantity)
	}

	if len(*env.notices) != 1 {
		t.Fatalf("notices = %d, want 1", len(*env.notices))
	}
	notice := (*env.notices)[0]
	for _, part := range []string{"Вася Столяров", "Sanding", "20"} {
		if !strings.Contains(notice, part) {
			t.Errorf("notice %q missing %q", notice, part)
		}
	}
}

func TestReportFlowGeneral(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.worker.TelegramID, "Cutting")
	env.handle(t, env.worker.TelegramID, btnNoAssignment)
	reply := env.handle(t, env.worker.TelegramID, "10")
	if !reply.Done {
		t.Fatalf("flow not done: %q", reply.Text)
	}

	days, err := env.reports.PerUserReport(ctx, env.worker.ID)
	if err != nil {
		t.Fatalf("PerUserReport: %v", err)
	}
	if len(days) != 1 || days[0].Lines[0].Quantity != 10 {
		t.Errorf("stored report = %+v", days)
	}
	if !strings.Contains((*env.notices)[0], "Вне заданий") {
		t.Errorf("general notice = %q", (*env.notices)[0])
	}
}

func TestInvalidInputRepromptsKeepingState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reply := env.handle(t, env.worker.TelegramID, "Quantum welding")
	if reply.Done {
		t.Fatal("invalid input must not end the flow")
	}
	if !strings.HasPrefix(reply.Text, "⚠️") {
		t.Errorf("reply = %q, want a single warning message", reply.Text)
	}
	if !strings.Contains(reply.Text, "Шаг 1") {
		t.Errorf("reply should re-ask the same step: %q", reply.Text)
	}
	if !env.engine.Active(env.worker.TelegramID) {
		t.Fatal("session must survive a validation error")
	}

	// The same step accepts a valid value afterwards.
	reply = env.handle(t, env.worker.TelegramID, "Sanding")
	if !strings.Contains(reply.Text, "Шаг 2") {
		t.Errorf("valid retry should advance: %q", reply.Text)
	}
}

func TestCancelDiscardsEverything(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.worker.TelegramID, "Sanding")

	reply := env.handle(t, env.worker.TelegramID, btnCancel)
	if !reply.Done {
		t.Fatal("cancel must end the session")
	}
	if env.engine.Active(env.worker.TelegramID) {
		t.Fatal("session must be gone after cancel")
	}

	days, err := env.reports.PerUserReport(ctx, env.worker.ID)
	if err != nil {
		t.Fatalf("PerUserReport: %v", err)
	}
	if len(days) != 0 {
		t.Errorf("cancelled flow wrote %d day groups, want none", len(days))
	}

	// A fresh flow starts from a clean draft.
	reply, err = env.engine.Start(ctx, env.worker, FlowNewReport)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if !strings.Contains(reply.Text, "Шаг 1") {
		t.Errorf("restart prompt = %q", reply.Text)
	}
}

func TestOverAllocationAtCommitKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newAssignment(t, "Sanding", 50)

	if _, err := env.reports.Submit(ctx, &env.worker, service.ReportInput{WorkType: "Sanding", Quantity: 30, AssignmentID: &a.ID}); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.worker.TelegramID, "Sanding")
	env.handle(t, env.worker.TelegramID, fmt.Sprintf("#%d", a.ID))

	reply := env.handle(t, env.worker.TelegramID, "40")
	if reply.Done {
		t.Fatal("over-allocation must keep the session for a retry")
	}
	if !strings.Contains(reply.Text, "🚫") {
		t.Errorf("reply = %q", reply.Text)
	}
	if !env.engine.Active(env.worker.TelegramID) {
		t.Fatal("session dropped after over-allocation")
	}

	reply = env.handle(t, env.worker.TelegramID, "20")
	if !reply.Done {
		t.Fatalf("retry with a fitting quantity should commit: %q", reply.Text)
	}
	fresh, _ := env.plans.FindAssignment(ctx, a.ID)
	if fresh.CompletedQuantity != 50 {
		t.Errorf("CompletedQuantity = %d, want 50", fresh.CompletedQuantity)
	}
}

func TestReportFlowFreeQuantity(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.worker.TelegramID, "Cutting")
	env.handle(t, env.worker.TelegramID, btnNoAssignment)

	reply := env.handle(t, env.worker.TelegramID, btnOtherQty)
	if reply.Done || !strings.Contains(reply.Text, "числом") {
		t.Fatalf("free-quantity prompt = %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, "ноль")
	if reply.Done || !strings.HasPrefix(reply.Text, "⚠️") {
		t.Errorf("non-numeric input: %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, "17")
	if !reply.Done {
		t.Fatalf("flow not done: %q", reply.Text)
	}
	days, _ := env.reports.PerUserReport(ctx, env.worker.ID)
	if len(days) != 1 || days[0].Lines[0].Quantity != 17 {
		t.Errorf("stored report = %+v", days)
	}
}

func TestReportFlowPercentOfTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.newAssignment(t, "Sanding", 50)

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.worker.TelegramID, "Sanding")
	env.handle(t, env.worker.TelegramID, fmt.Sprintf("#%d", a.ID))

	reply := env.handle(t, env.worker.TelegramID, btnPercentQty)
	if reply.Done || !strings.Contains(reply.Text, "50 шт.") {
		t.Fatalf("percent prompt = %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, "150")
	if reply.Done || !strings.HasPrefix(reply.Text, "⚠️") {
		t.Errorf("out-of-range percent: %q", reply.Text)
	}

	reply = env.handle(t, env.worker.TelegramID, "50%")
	if !reply.Done {
		t.Fatalf("flow not done: %q", reply.Text)
	}
	fresh, _ := env.plans.FindAssignment(ctx, a.ID)
	if fresh.CompletedQuantity != 25 {
		t.Errorf("CompletedQuantity = %d, want 25 (50%% of 50)", fresh.CompletedQuantity)
	}
}

func TestStartReplacesExistingSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Start(ctx, env.worker, FlowNewReport); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.worker.TelegramID, "Sanding")

	reply, err := env.engine.Start(ctx, env.worker, FlowNewReport)
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !strings.Contains(reply.Text, "Предыдущий диалог сброшен") {
		t.Errorf("restart should warn about the dropped dialog: %q", reply.Text)
	}
	if !strings.Contains(reply.Text, "Шаг 1") {
		t.Errorf("restart should begin from the first step: %q", reply.Text)
	}
}

func TestTaskFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.engine.Start(ctx, env.admin, FlowNewTask); err != nil {
		t.Fatalf("Start: %v", err)
	}
	reply := env.handle(t, env.admin.TelegramID, "Партия 12, фасады")
	if !reply.Done {
		t.Fatalf("flow not done: %q", reply.Text)
	}

	tasks, err := env.plans.ListActiveTasks(ctx)
	if err != nil {
		t.Fatalf("ListActiveTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Description != "Партия 12, фасады" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestAssignFlowWithSkips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.plans.CreateTask(ctx, &env.admin, "Партия 7")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	if _, err := env.engine.Start(ctx, env.admin, FlowAssignWork); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.admin.TelegramID, fmt.Sprintf("#%d", task.ID))
	env.handle(t, env.admin.TelegramID, "Assembly")
	env.handle(t, env.admin.TelegramID, "30")
	env.handle(t, env.admin.TelegramID, btnSkip)
	reply := env.handle(t, env.admin.TelegramID, "1,3,5")
	if !reply.Done {
		t.Fatalf("flow not done: %q", reply.Text)
	}

	assignments, err := env.plans.ListByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("ListByTask: %v", err)
	}
	if len(assignments) != 1 {
		t.Fatalf("assignments = %d, want 1", len(assignments))
	}
	a := assignments[0]
	if a.WorkType != "Assembly" || a.TargetQuantity != 30 || a.WorkerID != nil || a.Weekdays != "1,3,5" {
		t.Errorf("assignment = %+v", a)
	}
}

func TestManageUserFlowApproveAndPhone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending, err := env.identity.RegisterOrUpdate(ctx, 3003, "Новичок")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := env.engine.Start(ctx, env.admin, FlowManageUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.admin.TelegramID, fmt.Sprintf("#%d", pending.ID))
	reply := env.handle(t, env.admin.TelegramID, btnApprove)
	if !reply.Done {
		t.Fatalf("approve not committed: %q", reply.Text)
	}
	fresh, _ := env.identity.FindByID(ctx, pending.ID)
	if !fresh.Active {
		t.Error("user should be active after the approve flow")
	}

	// Second pass: store a phone, rejecting a bad one first.
	if _, err := env.engine.Start(ctx, env.admin, FlowManageUser); err != nil {
		t.Fatalf("Start: %v", err)
	}
	env.handle(t, env.admin.TelegramID, fmt.Sprintf("#%d", pending.ID))
	env.handle(t, env.admin.TelegramID, btnSetPhone)

	reply = env.handle(t, env.admin.TelegramID, "12345")
	if reply.Done || !strings.HasPrefix(reply.Text, "⚠️") {
		t.Errorf("bad phone: %q", reply.Text)
	}

	reply = env.handle(t, env.admin.TelegramID, "+71234567890")
	if !reply.Done {
		t.Fatalf("phone not committed: %q", reply.Text)
	}
	fresh, _ = env.identity.FindByID(ctx, pending.ID)
	if fresh.Phone != "+71234567890" {
		t.Errorf("phone = %q", fresh.Phone)
	}
}

func TestHandleWithoutSession(t *testing.T) {
	env := newTestEnv(t)
	if _, ok := env.engine.Handle(context.Background(), 9999, "что-то"); ok {
		t.Error("Handle must report no session for an unknown user")
	}
}
