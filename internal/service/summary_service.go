package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"shopfloor-bot/internal/model"
)

// SummaryService renders aggregated progress into human-readable HTML
// for Telegram delivery.
type SummaryService struct {
	reports *ReportService
}

func NewSummaryService(reports *ReportService) *SummaryService {
	return &SummaryService{reports: reports}
}

// WorkerReportText builds the per-user view: reports grouped by date.
func (s *SummaryService) WorkerReportText(ctx context.Context, user *model.User) (string, error) {
	days, err := s.reports.PerUserReport(ctx, user.ID)
	if err != nil {
		return "", err
	}
	if len(days) == 0 {
		return "📭 Отчётов пока нет. Сдай первый через «Новый отчёт».", nil
	}

	var b strings.Builder
	b.WriteString("📈 <b>Твои отчёты</b>\n")
	for _, day := range days {
		b.WriteString(fmt.Sprintf("\n🗓 <b>%s</b>\n", day.Date.Format("02.01.2006")))
		for _, line := range day.Lines {
			b.WriteString(fmt.Sprintf("• %s — %d шт.\n", escape(line.WorkType), line.Quantity))
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// AdminSummaryText builds the supervisor view: every user's reports
// grouped by date and work type.
func (s *SummaryService) AdminSummaryText(ctx context.Context) (string, error) {
	summary, err := s.reports.AdminSummary(ctx)
	if err != nil {
		return "", err
	}
	if len(summary) == 0 {
		return "📭 Отчётов ещё никто не сдавал.", nil
	}

	var b strings.Builder
	b.WriteString("📊 <b>Сводка по отчётам</b>\n")
	for _, item := range summary {
		name := strings.TrimSpace(item.User.Name)
		if name == "" {
			name = fmt.Sprintf("#%d", item.User.ID)
		}
		b.WriteString(fmt.Sprintf("\n👷 <b>%s</b>\n", escape(name)))
		for _, day := range item.Days {
			b.WriteString(fmt.Sprintf("  🗓 %s\n", day.Date.Format("02.01.2006")))
			for _, line := range day.Lines {
				b.WriteString(fmt.Sprintf("  • %s — %d шт.\n", escape(line.WorkType), line.Quantity))
			}
		}
	}
	return strings.TrimSpace(b.String()), nil
}

// ProgressText builds the completion view of one task.
func (s *SummaryService) ProgressText(ctx context.Context, taskID uint) (string, error) {
	progress, err := s.reports.Progress(ctx, taskID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	status := ""
	if !progress.Task.Active {
		status = " (закрыта)"
	}
	b.WriteString(fmt.Sprintf("📋 <b>Задача #%d</b>%s\n%s\n", progress.Task.ID, status, escape(progress.Task.Description)))
	if len(progress.Items) == 0 {
		b.WriteString("\nЗаданий пока нет.")
		return b.String(), nil
	}
	for _, item := range progress.Items {
		a := item.Assignment
		b.WriteString(fmt.Sprintf("\n%s <b>%s</b>: %d из %d (%d%%)\n",
			progressIcon(item.Percent), escape(a.WorkType), a.CompletedQuantity, a.TargetQuantity, item.Percent))
		b.WriteString(fmt.Sprintf("   %s\n", progressBar(item.Percent)))
	}
	b.WriteString(fmt.Sprintf("\nИтого по задаче: <b>%d%%</b>", progress.Overall))
	return strings.TrimSpace(b.String()), nil
}

func progressIcon(percent int) string {
	switch {
	case percent >= 100:
		return "✅"
	case percent > 0:
		return "🔶"
	default:
		return "⬜"
	}
}

func progressBar(percent int) string {
	const width = 10
	filled := percent / width
	if filled > width {
		filled = width
	}
	return strings.Repeat("▰", filled) + strings.Repeat("▱", width-filled)
}

func escape(s string) string {
	return html.EscapeString(s)
}
