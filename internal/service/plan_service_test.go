package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"shopfloor-bot/internal/model"
)

func TestAddAssignmentValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, err := env.plans.CreateTask(ctx, env.admin, "Партия 7")
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	cases := []struct {
		name string
		in   AssignmentInput
	}{
		{"unknown work type", AssignmentInput{TaskID: task.ID, WorkType: "Quantum welding", TargetQuantity: 10}},
		{"zero target", AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 0}},
		{"negative target", AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: -5}},
		{"bad weekday", AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10, Weekdays: []int{0}}},
		{"weekday out of range", AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10, Weekdays: []int{8}}},
	}
	for _, tc := range cases {
		if _, err := env.plans.AddAssignment(ctx, env.admin, tc.in); !model.IsValidation(err) {
			t.Errorf("%s: err = %v, want ValidationError", tc.name, err)
		}
	}

	if _, err := env.plans.AddAssignment(ctx, env.worker, AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10}); !errors.Is(err, model.ErrAccessDenied) {
		t.Errorf("AddAssignment by worker = %v, want ErrAccessDenied", err)
	}
	if _, err := env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: 999, WorkType: "Sanding", TargetQuantity: 10}); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("AddAssignment to missing task = %v, want ErrNotFound", err)
	}
}

func TestAddAssignmentRejectsClosedTask(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, _ := env.plans.CreateTask(ctx, env.admin, "Партия 7")
	if err := env.plans.DeactivateTask(ctx, env.admin, task.ID); err != nil {
		t.Fatalf("DeactivateTask: %v", err)
	}
	if _, err := env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10}); !model.IsValidation(err) {
		t.Errorf("AddAssignment to closed task = %v, want ValidationError", err)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.plans.CreateTask(ctx, env.admin, "   "); !model.IsValidation(err) {
		t.Errorf("CreateTask(blank) = %v, want ValidationError", err)
	}
	if _, err := env.plans.CreateTask(ctx, env.worker, "Партия 7"); !errors.Is(err, model.ErrAccessDenied) {
		t.Errorf("CreateTask by worker = %v, want ErrAccessDenied", err)
	}
}

func TestListOpenAssignmentsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	task, _ := env.plans.CreateTask(ctx, env.admin, "Партия 7")
	cutting, _ := env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Cutting", TargetQuantity: 10})
	scoped, _ := env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10, WorkerID: &env.worker.ID})
	weekdayOnly, _ := env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10, Weekdays: []int{1, 2, 3, 4, 5}})

	all, err := env.plans.ListOpenAssignments(ctx, OpenFilter{})
	if err != nil {
		t.Fatalf("ListOpenAssignments: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("open assignments = %d, want 3", len(all))
	}

	byType, _ := env.plans.ListOpenAssignments(ctx, OpenFilter{WorkType: "Cutting"})
	if len(byType) != 1 || byType[0].ID != cutting.ID {
		t.Errorf("work-type filter returned %d items", len(byType))
	}

	otherWorker := uint(env.worker.ID + 100)
	byWorker, _ := env.plans.ListOpenAssignments(ctx, OpenFilter{WorkerID: &otherWorker})
	for _, a := range byWorker {
		if a.ID == scoped.ID {
			t.Error("worker-scoped assignment leaked to another worker")
		}
	}

	sunday := time.Sunday
	bySunday, _ := env.plans.ListOpenAssignments(ctx, OpenFilter{Weekday: &sunday})
	for _, a := range bySunday {
		if a.ID == weekdayOnly.ID {
			t.Error("weekday-scoped assignment listed outside its days")
		}
	}
}

func TestListOpenAssignmentsExcludesClosed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.newAssignment(t, "Sanding", 10, nil, nil)
	if _, err := env.reports.Submit(ctx, env.worker, ReportInput{WorkType: "Sanding", Quantity: 10, AssignmentID: &a.ID}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	open, err := env.plans.ListOpenAssignments(ctx, OpenFilter{})
	if err != nil {
		t.Fatalf("ListOpenAssignments: %v", err)
	}
	for _, item := range open {
		if item.ID == a.ID {
			t.Error("fully completed assignment still listed as open")
		}
	}

	closedTask := env.newAssignment(t, "Cutting", 10, nil, nil)
	if err := env.plans.DeactivateTask(ctx, env.admin, closedTask.TaskID); err != nil {
		t.Fatalf("DeactivateTask: %v", err)
	}
	open, _ = env.plans.ListOpenAssignments(ctx, OpenFilter{})
	for _, item := range open {
		if item.ID == closedTask.ID {
			t.Error("assignment of a closed task still listed as open")
		}
	}
}

func TestMatchAssignmentPolicy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// No candidates: the report should fall through to general.
	match, err := env.plans.MatchAssignment(ctx, env.worker, "Sanding", time.Wednesday)
	if err != nil {
		t.Fatalf("MatchAssignment: %v", err)
	}
	if match != nil {
		t.Fatalf("match = %v, want nil with no candidates", match.ID)
	}

	task, _ := env.plans.CreateTask(ctx, env.admin, "Партия 7")
	first, _ := env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10})
	env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Sanding", TargetQuantity: 10})

	match, err = env.plans.MatchAssignment(ctx, env.worker, "Sanding", time.Wednesday)
	if err != nil {
		t.Fatalf("MatchAssignment: %v", err)
	}
	if match == nil || match.ID != first.ID {
		t.Errorf("match should pick the earliest-created assignment, got %+v", match)
	}

	// Worker scope: assignments pinned to someone else never match.
	otherWorker := registerActiveWorker(t, env.identity, env.admin, 5005, "Маша")
	env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Cutting", TargetQuantity: 10, WorkerID: &otherWorker.ID})
	match, _ = env.plans.MatchAssignment(ctx, env.worker, "Cutting", time.Wednesday)
	if match != nil {
		t.Error("assignment scoped to another worker must not match")
	}

	// Weekday scope: out-of-scope days never match.
	env.plans.AddAssignment(ctx, env.admin, AssignmentInput{TaskID: task.ID, WorkType: "Assembly", TargetQuantity: 10, Weekdays: []int{1, 2, 3, 4, 5}})
	match, _ = env.plans.MatchAssignment(ctx, env.worker, "Assembly", time.Sunday)
	if match != nil {
		t.Error("weekday-scoped assignment must not match on Sunday")
	}
	match, _ = env.plans.MatchAssignment(ctx, env.worker, "Assembly", time.Tuesday)
	if match == nil {
		t.Error("weekday-scoped assignment should match on Tuesday")
	}
}

func TestJoinWeekdays(t *testing.T) {
	cases := []struct {
		in   []int
		want string
	}{
		{nil, ""},
		{[]int{5, 1, 3}, "1,3,5"},
		{[]int{2, 2, 2}, "2"},
		{[]int{1, 2, 3, 4, 5, 6, 7}, "1,2,3,4,5,6,7"},
	}
	for _, tc := range cases {
		if got := joinWeekdays(tc.in); got != tc.want {
			t.Errorf("joinWeekdays(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
