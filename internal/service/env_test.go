package service

import (
	"context"
	"path/filepath"
	"testing"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/repository"
)

type testEnv struct {
	identity *IdentityService
	plans    *PlanService
	reports  *ReportService

	admin  *model.User
	worker *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	taskRepo := repository.NewTaskRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	identity := NewIdentityService(userRepo)
	plans := NewPlanService(taskRepo, assignmentRepo, model.DefaultCatalog())
	reports := NewReportService(reportRepo, userRepo, plans)

	ctx := context.Background()
	admin, err := identity.SeedAdmin(ctx, 1001)
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	worker := registerActiveWorker(t, identity, admin, 2002, "Вася Столяров")

	return &testEnv{
		identity: identity,
		plans:    plans,
		reports:  reports,
		admin:    admin,
		worker:   worker,
	}
}

func registerActiveWorker(t *testing.T, identity *IdentityService, admin *model.User, telegramID int64, name string) *model.User {
	t.Helper()
	ctx := context.Background()
	worker, err := identity.RegisterOrUpdate(ctx, telegramID, name)
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
	return worker
}

func (e *testEnv) newAssignment(t *testing.T, workType string, target int, workerID *uint, weekdays []int) *model.WorkAssignment {
	t.Helper()
	ctx := context.Background()
	task, err := e.plans.CreateTask(ctx, e.admin, "Партия 7")
	if err != nil {
		t.Fatalf("create task: %v", err)
	}
	a, err := e.plans.AddAssignment(ctx, e.admin, AssignmentInput{
		TaskID:         task.ID,
		WorkType:       workType,
		TargetQuantity: target,
		WorkerID:       workerID,
		Weekdays:       weekdays,
	})
	if err != nil {
		t.Fatalf("add assignment: %v", err)
	}
	return a
}
