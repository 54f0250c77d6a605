package dialog

import (
	"context"
	"fmt"
	"html"
	"strings"
)

const stageTaskDescription stageID = iota + 20

type taskDraft struct {
	description string
}

// newTaskFlow collects a description and creates a task.
func newTaskFlow(deps Deps) *Flow {
	return &Flow{
		Name:      FlowNewTask,
		AdminOnly: true,
		Start:     stageTaskDescription,
		NewDraft:  func() any { return &taskDraft{} },
		Stages: map[stageID]Stage{
			stageTaskDescription: {
				Ask: func(ctx context.Context, s *Session) (Prompt, error) {
					return Prompt{Text: "🆕 Новая задача.\nОпиши её одним сообщением, например: «Партия №7, кухонные фасады»."}, nil
				},
				Handle: func(ctx context.Context, s *Session, text string) (stageID, error) {
					s.draft.(*taskDraft).description = strings.TrimSpace(text)
					return stageDone, nil
				},
			},
		},
		Commit: func(ctx context.Context, s *Session) (string, string, error) {
			d := s.draft.(*taskDraft)
			task, err := deps.Plans.CreateTask(ctx, &s.User, d.description)
			if err != nil {
				return "", "", err
			}
			confirm := fmt.Sprintf("✅ Задача #%d создана: %s\nДобавь задания командой /assign.",
				task.ID, html.EscapeString(task.Description))
			return confirm, "", nil
		},
	}
}
