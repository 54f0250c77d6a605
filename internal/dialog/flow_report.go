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
	stageReportType stageID = iota + 10
	stageReportAssignment
	stageReportQuantity
	stageReportQuantityFree
	stageReportPercent
)

const (
	btnNoAssignment = "📦 Без задания"
	btnOtherQty     = "✏️ Другое количество"
	btnPercentQty   = "📊 Процент от плана"
)

var presetQuantities = []string{"5", "10", "20", "50"}

type reportDraft struct {
	workType     string
	assignmentID *uint
	general      bool
	target       int
	quantity     int
}

// newReportFlow collects work type, assignment attribution and quantity,
// then writes one ledger record.
func newReportFlow(deps Deps) *Flow {
	return &Flow{
		Name:     FlowNewReport,
		Start:    stageReportType,
		NewDraft: func() any { return &reportDraft{} },
		Stages: map[stageID]Stage{
			stageReportType: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{
						Text:    "📦 Новый отчёт.\n<b>Шаг 1:</b> какой вид работы?",
						Options: keyboardRows(deps.Plans.Catalog().Names(), 2),
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					if !deps.Plans.Catalog().Contains(text) {
						return 0, model.Invalid("Такого вида работы нет в справочнике, выбери кнопкой.")
					}
					d := s.draft.(*reportDraft)
					d.workType = text
					return stageReportAssignment, nil
				},
			},
			stageReportAssignment: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					d := s.draft.(*reportDraft)
					weekday := deps.Now().Weekday()
					open, err := deps.Plans.ListOpenAssignments(ctx, service.OpenFilter{
						WorkType: d.workType,
						WorkerID: &s.User.ID,
						Weekday:  &weekday,
					})
					if err != nil {
						return Prompt{}, err
					}
					labels := make([]string, 0, len(open)+1)
					for _, a := range open {
						labels = append(labels, fmt.Sprintf("#%d · задача %d · осталось %d шт.", a.ID, a.TaskID, a.Remaining()))
					}
					labels = append(labels, btnNoAssignment)
					return Prompt{
						Text:    "<b>Шаг 2:</b> к какому заданию отнести отчёт?",
						Options: keyboardRows(labels, 1),
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					d := s.draft.(*reportDraft)
					if text == btnNoAssignment {
						d.general = true
						d.assignmentID = nil
						return stageReportQuantity, nil
					}
					id, err := parseIDOption(text)
					if err != nil {
						return 0, model.Invalid("Выбери задание кнопкой или нажми «Без задания».")
					}
					a, err := deps.Plans.FindAssignment(ctx, id)
					if err != nil {
						if errors.Is(err, model.ErrNotFound) {
							return 0, model.Invalid("Такого задания нет, выбери из списка.")
						}
						return 0, err
					}
					if a.WorkType != d.workType || !a.Open() || !a.MatchesWorker(s.User.ID) {
						return 0, model.Invalid("Это задание не подходит, выбери из списка.")
					}
					d.general = false
					d.assignmentID = &a.ID
					d.target = a.TargetQuantity
					return stageReportQuantity, nil
				},
			},
			stageReportQuantity: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					d := s.draft.(*reportDraft)
					options := [][]string{presetQuantities}
					extra := []string{btnOtherQty}
					if !d.general {
						extra = append(extra, btnPercentQty)
					}
					options = append(options, extra)
					return Prompt{
						Text:    "<b>Шаг 3:</b> сколько штук сделано?",
						Options: options,
					}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					d := s.draft.(*reportDraft)
					switch text {
					case btnOtherQty:
						return stageReportQuantityFree, nil
					case btnPercentQty:
						if d.general {
							return 0, model.Invalid("Процент доступен только при выбранном задании.")
						}
						return stageReportPercent, nil
					}
					qty, err := parsePositiveInt(text)
					if err != nil {
						return 0, err
					}
					d.quantity = qty
					return stageDone, nil
				},
			},
			stageReportQuantityFree: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{Text: "✏️ Введи количество числом."}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					qty, err := parsePositiveInt(text)
					if err != nil {
						return 0, err
					}
					s.draft.(*reportDraft).quantity = qty
					return stageDone, nil
				},
			},
			stageReportPercent: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					d := s.draft.(*reportDraft)
					return Prompt{Text: fmt.Sprintf("📊 Сколько процентов плана (%d шт.) выполнено? Целое число от 0 до 100.", d.target)}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					d := s.draft.(*reportDraft)
					pct, err := parsePercent(text)
					if err != nil {
						return 0, err
					}
					qty := d.target * pct / 100
					if qty <= 0 {
						return 0, model.Invalid("Получается ноль штук, укажи процент побольше или количество напрямую.")
					}
					d.quantity = qty
					return stageDone, nil
				},
			},
		},
		Commit: func(ctx context.Context, s *Session) (string, string, error) {
			d := s.draft.(*reportDraft)
			report, err := deps.Reports.Submit(ctx, &s.User, service.ReportInput{
				WorkType:     d.workType,
				Quantity:     d.quantity,
				AssignmentID: d.assignmentID,
				General:      d.general,
			})
			if err != nil {
				return "", "", err
			}

			confirm := fmt.Sprintf("✅ Отчёт принят: %s — %d шт.", html.EscapeString(d.workType), report.Quantity)

			notice := fmt.Sprintf("📦 <b>Новый отчёт</b>\n👷 %s\n🔧 %s — %d шт.",
				html.EscapeString(s.User.Name), html.EscapeString(report.WorkType), report.Quantity)
			if report.AssignmentID != nil {
				notice += fmt.Sprintf("\n📋 Задание #%d", *report.AssignmentID)
			} else {
				notice += "\n📋 Вне заданий"
			}
			if s.User.Phone != "" {
				notice += fmt.Sprintf("\n📞 %s", html.EscapeString(s.User.Phone))
			}
			return confirm, notice, nil
		},
	}
}
