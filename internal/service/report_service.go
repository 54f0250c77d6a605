package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"shopfloor-bot/internal/model"
	"shopfloor-bot/internal/repository"
)

// ReportInput carries the fields collected for one submission.
type ReportInput struct {
	WorkType string
	Quantity int
	// AssignmentID attributes the report explicitly; nil triggers the
	// matching policy unless General is set.
	AssignmentID *uint
	// General forces a task-less report, skipping attribution.
	General bool
}

// ReportLine is one (work type, quantity) pair inside a day group.
type ReportLine struct {
	WorkType string
	Quantity int
}

// DayGroup collects the lines of one calendar day.
type DayGroup struct {
	Date  time.Time
	Lines []ReportLine
}

// UserSummary is one user's day groups inside the admin summary.
type UserSummary struct {
	User model.User
	Days []DayGroup
}

// AssignmentProgress is one assignment's completion inside a task view.
type AssignmentProgress struct {
	Assignment model.WorkAssignment
	Percent    int
}

// TaskProgress is the per-task completion view. Percentages are whole
// integers with truncating division.
type TaskProgress struct {
	Task    model.Task
	Items   []AssignmentProgress
	Overall int
}

// ReportService owns the report ledger and the derived progress views.
type ReportService struct {
	reports *repository.ReportRepository
	users   *repository.UserRepository
	plans   *PlanService
	now     func() time.Time
}

func NewReportService(reports *repository.ReportRepository, users *repository.UserRepository, plans *PlanService) *ReportService {
	return &ReportService{
		reports: reports,
		users:   users,
		plans:   plans,
		now:     time.Now,
	}
}

// Submit validates and writes one report. The report date comes from
// the system clock, never from user input. Returns
// model.ErrOverAllocation with nothing written when the referenced
// assignment cannot take the quantity.
func (s *ReportService) Submit(ctx context.Context, user *model.User, in ReportInput) (*model.Report, error) {
	if user == nil || !user.Active {
		return nil, model.ErrAccessDenied
	}
	if !s.plans.Catalog().Contains(in.WorkType) {
		return nil, model.Invalid(fmt.Sprintf("Вид работы «%s» не входит в справочник.", in.WorkType))
	}
	if in.Quantity <= 0 {
		return nil, model.Invalid("Количество должно быть положительным числом.")
	}

	now := s.now()
	date := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	assignmentID := in.AssignmentID
	if assignmentID != nil {
		a, err := s.plans.FindAssignment(ctx, *assignmentID)
		if err != nil {
			return nil, err
		}
		if a.WorkType != in.WorkType {
			return nil, model.Invalid("Выбранное задание относится к другому виду работы.")
		}
	} else if !in.General {
		match, err := s.plans.MatchAssignment(ctx, user, in.WorkType, now.Weekday())
		if err != nil {
			return nil, err
		}
		if match != nil {
			assignmentID = &match.ID
		}
	}

	report := model.Report{
		UserID:       user.ID,
		WorkType:     in.WorkType,
		Quantity:     in.Quantity,
		Date:         date,
		AssignmentID: assignmentID,
	}
	if err := s.reports.Submit(ctx, &report); err != nil {
		return nil, err
	}

	log.Printf("[info] report submitted id=%d user=%d type=%s qty=%d", report.ID, user.ID, report.WorkType, report.Quantity)
	return &report, nil
}

// PerUserReport groups one user's reports by date, each line a
// (work type, quantity) pair with same-type quantities summed per day.
func (s *ReportService) PerUserReport(ctx context.Context, userID uint) ([]DayGroup, error) {
	reports, err := s.reports.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return groupByDay(reports), nil
}

// AdminSummary groups all reports by user, then date, then work type.
// Users without reports are omitted.
func (s *ReportService) AdminSummary(ctx context.Context) ([]UserSummary, error) {
	reports, err := s.reports.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, err
	}

	byUser := make(map[uint][]model.Report)
	for _, r := range reports {
		byUser[r.UserID] = append(byUser[r.UserID], r)
	}

	var out []UserSummary
	for _, u := range users {
		own, ok := byUser[u.ID]
		if !ok {
			continue
		}
		out = append(out, UserSummary{User: u, Days: groupByDay(own)})
	}
	return out, nil
}

// Progress derives per-assignment and overall completion for a task.
func (s *ReportService) Progress(ctx context.Context, taskID uint) (*TaskProgress, error) {
	task, err := s.plans.FindTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	assignments, err := s.plans.ListByTask(ctx, taskID)
	if err != nil {
		return nil, err
	}

	progress := TaskProgress{Task: *task}
	var totalTarget, totalDone int
	for _, a := range assignments {
		percent := 0
		if a.TargetQuantity > 0 {
			percent = a.CompletedQuantity * 100 / a.TargetQuantity
		}
		progress.Items = append(progress.Items, AssignmentProgress{Assignment: a, Percent: percent})
		totalTarget += a.TargetQuantity
		totalDone += a.CompletedQuantity
	}
	if totalTarget > 0 {
		progress.Overall = totalDone * 100 / totalTarget
	}
	return &progress, nil
}

func groupByDay(reports []model.Report) []DayGroup {
	type dayKey string
	byDay := make(map[dayKey]*DayGroup)
	var order []dayKey

	for _, r := range reports {
		key := dayKey(r.Date.Format("2006-01-02"))
		group, ok := byDay[key]
		if !ok {
			group = &DayGroup{Date: r.Date}
			byDay[key] = group
			order = append(order, key)
		}
		merged := false
		for i := range group.Lines {
			if group.Lines[i].WorkType == r.WorkType {
				group.Lines[i].Quantity += r.Quantity
				merged = true
				break
			}
		}
		if !merged {
			group.Lines = append(group.Lines, ReportLine{WorkType: r.WorkType, Quantity: r.Quantity})
		}
	}

	sort.SliceStable(order, func(i, j int) bool { return order[i] < order[j] })
	out := make([]DayGroup, 0, len(order))
	for _, key := range order {
		out = append(out, *byDay[key])
	}
	return out
}
