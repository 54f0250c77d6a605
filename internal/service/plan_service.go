package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"strings"
	"time"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/repository"
)

// AssignmentInput carries the fields collected for a new work assignment.
type AssignmentInput struct {
	TaskID         uint
	WorkType       string
	TargetQuantity int
	WorkerID       *uint
	Weekdays       []int // ISO weekday numbers, empty = any day
}

// OpenFilter narrows ListOpenAssignments. Nil fields are ignored.
type OpenFilter struct {
	WorkType string
	WorkerID *uint
	Weekday  *time.Weekday
	TaskID   *uint
}

// PlanService owns tasks and their work assignments.
type PlanService struct {
	tasks       *repository.TaskRepository
	assignments *repository.AssignmentRepository
	catalog     *model.Catalog
}

func NewPlanService(tasks *repository.TaskRepository, assignments *repository.AssignmentRepository, catalog *model.Catalog) *PlanService {
	return &PlanService{tasks: tasks, assignments: assignments, catalog: catalog}
}

func (s *PlanService) Catalog() *model.Catalog { return s.catalog }

// CreateTask records a new unit of work. Admin only.
func (s *PlanService) CreateTask(ctx context.Context, creator *model.User, description string) (*model.Task, error) {
	if creator == nil || !creator.Active || !creator.IsAdmin() {
		return nil, model.ErrAccessDenied
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, model.Invalid("Описание задачи не может быть пустым.")
	}
	task := model.Task{
		Description: description,
		CreatorID:   creator.ID,
		Active:      true,
	}
	if err := s.tasks.Create(ctx, &task); err != nil {
		return nil, err
	}
	log.Printf("[info] task created id=%d by=%d", task.ID, creator.ID)
	return &task, nil
}

// AddAssignment attaches a work-type target to a task.
func (s *PlanService) AddAssignment(ctx context.Context, actor *model.User, in AssignmentInput) (*model.WorkAssignment, error) {
	if actor == nil || !actor.Active || !actor.IsAdmin() {
		return nil, model.ErrAccessDenied
	}
	if !s.catalog.Contains(in.WorkType) {
		return nil, model.Invalid(fmt.Sprintf("Вид работы «%s» не входит в справочник.", in.WorkType))
	}
	if in.TargetQuantity <= 0 {
		return nil, model.Invalid("Плановое количество должно быть положительным числом.")
	}
	for _, d := range in.Weekdays {
		if d < 1 || d > 7 {
			return nil, model.Invalid("Дни недели указываются числами от 1 до 7.")
		}
	}
	task, err := s.tasks.FindByID(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	if !task.Active {
		return nil, model.Invalid("Задача уже закрыта, новые задания к ней не добавить.")
	}

	a := model.WorkAssignment{
		TaskID:         task.ID,
		WorkType:       in.WorkType,
		TargetQuantity: in.TargetQuantity,
		WorkerID:       in.WorkerID,
		Weekdays:       joinWeekdays(in.Weekdays),
	}
	if err := s.assignments.Create(ctx, &a); err != nil {
		return nil, err
	}
	log.Printf("[info] assignment created id=%d task=%d type=%s target=%d", a.ID, a.TaskID, a.WorkType, a.TargetQuantity)
	return &a, nil
}

// DeactivateTask closes a task. Idempotent.
func (s *PlanService) DeactivateTask(ctx context.Context, actor *model.User, taskID uint) error {
	if actor == nil || !actor.Active || !actor.IsAdmin() {
		return model.ErrAccessDenied
	}
	if err := s.tasks.Deactivate(ctx, taskID); err != nil {
		return err
	}
	log.Printf("[info] task deactivated id=%d by=%d", taskID, actor.ID)
	return nil
}

func (s *PlanService) FindTask(ctx context.Context, taskID uint) (*model.Task, error) {
	return s.tasks.FindByID(ctx, taskID)
}

func (s *PlanService) ListActiveTasks(ctx context.Context) ([]model.Task, error) {
	return s.tasks.ListActive(ctx)
}

func (s *PlanService) ListByTask(ctx context.Context, taskID uint) ([]model.WorkAssignment, error) {
	return s.assignments.ListByTask(ctx, taskID)
}

func (s *PlanService) FindAssignment(ctx context.Context, id uint) (*model.WorkAssignment, error) {
	return s.assignments.FindByID(ctx, id)
}

// ListOpenAssignments returns still-open assignments of active tasks
// matching the filter, ordered by creation time ascending.
func (s *PlanService) ListOpenAssignments(ctx context.Context, f OpenFilter) ([]model.WorkAssignment, error) {
	items, err := s.assignments.ListForActiveTasks(ctx, f.WorkType)
	if err != nil {
		return nil, err
	}
	out := items[:0:0]
	for _, a := range items {
		if !a.Open() {
			continue
		}
		if f.TaskID != nil && a.TaskID != *f.TaskID {
			continue
		}
		if f.WorkerID != nil && !a.MatchesWorker(*f.WorkerID) {
			continue
		}
		if f.Weekday != nil && !a.ActiveOn(*f.Weekday) {
			continue
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// MatchAssignment is the explicit attribution policy for reports that
// arrive without an assignment reference: the earliest-created open
// assignment whose work type matches and whose worker and weekday
// scopes allow the reporter on the given day. Returns nil when nothing
// matches (the report is then stored as general).
func (s *PlanService) MatchAssignment(ctx context.Context, worker *model.User, workType string, day time.Weekday) (*model.WorkAssignment, error) {
	open, err := s.ListOpenAssignments(ctx, OpenFilter{
		WorkType: workType,
		WorkerID: &worker.ID,
		Weekday:  &day,
	})
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}
	return &open[0], nil
}

func joinWeekdays(days []int) string {
	if len(days) == 0 {
		return ""
	}
	sorted := append([]int(nil), days...)
	sort.Ints(sorted)
	parts := make([]string, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && sorted[i-1] == d {
			continue
		}
		parts = append(parts, strconv.Itoa(d))
	}
	return strings.Join(parts, ",")
}
