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
	stageAssignTask stageID = iota + 30
	stageAssignType
	stageAssignTarget
	stageAssignWorker
	stageAssignWeekdays
)

type assignDraft struct {
	taskID   uint
	workType string
	target   int
	workerID *uint
	weekdays []int
}

// newAssignFlow attaches a work-type target to an existing task,
// optionally scoped to one worker and to certain weekdays.
func newAssignFlow(deps Deps) *Flow {
	return &Flow{
		Name:      FlowAssignWork,
		AdminOnly: true,
		Start:     stageAssignTask,
		NewDraft:  func() any { return &assignDraft{} },
		Stages: map[stageID]Stage{
			stageAssignTask: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					tasks, err := deps.Plans.ListActiveTasks(ctx)
					if err != nil {
						return Prompt{}, err
					}
					if len(tasks) == 0 {
						return Prompt{Text: "Активных задач нет. Сначала создай задачу через /newtask, потом добавляй задания.\nНомер задачи можно ввести и вручную."}, nil
					}
					labels := make([]string, 0, len(tasks))
					for _, t := range tasks {
						labels = append(labels, fmt.Sprintf("#%d · %s", t.ID, shorten(t.Description, 32)))
					}
					return Prompt{
						Text:    "🧩 Новое задание.\n<b>Шаг 1:</b> к какой задаче?",
						Options: keyboardRows(labels, 1),
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					id, err := parseIDOption(text)
					if err != nil {
						return 0, err
					}
					task, err := deps.Plans.FindTask(ctx, id)
					if err != nil {
						if errors.Is(err, model.ErrNotFound) {
							return 0, model.Invalid("Такой задачи нет, выбери из списка.")
						}
						return 0, err
					}
					if !task.Active {
						return 0, model.Invalid("Задача уже закрыта, выбери активную.")
					}
					s.draft.(*assignDraft).taskID = task.ID
					return stageAssignType, nil
				},
			},
			stageAssignType: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{
						Text:    "<b>Шаг 2:</b> вид работы?",
						Options: keyboardRows(deps.Plans.Catalog().Names(), 2),
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					if !deps.Plans.Catalog().Contains(text) {
						return 0, model.Invalid("Такого вида работы нет в справочнике, выбери кнопкой.")
					}
					s.draft.(*assignDraft).workType = text
					return stageAssignTarget, nil
				},
			},
			stageAssignTarget: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{Text: "<b>Шаг 3:</b> плановое количество, шт.?"}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					target, err := parsePositiveInt(text)
					if err != nil {
						return 0, err
					}
					s.draft.(*assignDraft).target = target
					return stageAssignWorker, nil
				},
			},
			stageAssignWorker: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					workers, err := deps.Identity.ListActiveWorkers(ctx)
					if err != nil {
						return Prompt{}, err
					}
					labels := make([]string, 0, len(workers)+1)
					for _, w := range workers {
						labels = append(labels, fmt.Sprintf("#%d · %s", w.ID, shorten(w.Name, 24)))
					}
					labels = append(labels, btnSkip)
					return Prompt{
						Text:    "<b>Шаг 4:</b> закрепить за конкретным рабочим? Выбери или пропусти.",
						Options: keyboardRows(labels, 1),
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					d := s.draft.(*assignDraft)
					if isSkipInput(text) {
						d.workerID = nil
						return stageAssignWeekdays, nil
					}
					id, err := parseIDOption(text)
					if err != nil {
						return 0, err
					}
					worker, err := deps.Identity.FindByID(ctx, id)
					if err != nil {
						if errors.Is(err, model.ErrNotFound) {
							return 0, model.Invalid("Такого рабочего нет, выбери из списка.")
						}
						return 0, err
					}
					d.workerID = &worker.ID
					return stageAssignWeekdays, nil
				},
			},
			stageAssignWeekdays: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{
						Text:    "<b>Шаг 5:</b> дни недели числами через запятую (1=Пн … 7=Вс), например 1,3,5, или пропусти.",
						Options: [][]string{{btnSkip}},
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					d := s.draft.(*assignDraft)
					if isSkipInput(text) {
						d.weekdays = nil
						return stageDone, nil
					}
					days, err := parseWeekdays(text)
					if err != nil {
						return 0, err
					}
					d.weekdays = days
					return stageDone, nil
				},
			},
		},
		Commit: func(ctx context.Context, s *Session) (string, string, error) {
			d := s.draft.(*assignDraft)
			a, err := deps.Plans.AddAssignment(ctx, &s.User, service.AssignmentInput{
				TaskID:         d.taskID,
				WorkType:       d.workType,
				TargetQuantity: d.target,
				WorkerID:       d.workerID,
				Weekdays:       d.weekdays,
			})
			if err != nil {
				return "", "", err
			}
			confirm := fmt.Sprintf("✅ Задание #%d добавлено к задаче #%d: %s, план %d шт.",
				a.ID, a.TaskID, html.EscapeString(a.WorkType), a.TargetQuantity)
			if a.WorkerID != nil {
				confirm += fmt.Sprintf("\n👷 Закреплено за рабочим #%d.", *a.WorkerID)
			}
			if a.Weekdays != "" {
				confirm += fmt.Sprintf("\n📆 Дни недели: %s.", a.Weekdays)
			}
			return confirm, "", nil
		},
	}
}

func shorten(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen-1]) + "…"
}
