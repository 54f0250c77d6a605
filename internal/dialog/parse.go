package dialog

import (
	"strconv"
	"strings"

	"shopfloor-bot/internal/model"
)

const (
	btnCancel = "⏪ Отменить ввод"
	btnSkip   = "⏭️ Пропустить"
)

func isCancelInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == strings.ToLower(btnCancel) || value == "отмена" || value == "отменить ввод"
}

func isSkipInput(text string) bool {
	value := strings.TrimSpace(strings.ToLower(text))
	return value == "-" || value == strings.ToLower(btnSkip) || value == "пропустить" || value == "skip"
}

// withCancel appends the universal cancel button as the last keyboard row.
func withCancel(options [][]string) [][]string {
	out := make([][]string, 0, len(options)+1)
	out = append(out, options...)
	return append(out, []string{btnCancel})
}

// keyboardRows lays out labels into rows of the given width.
func keyboardRows(labels []string, perRow int) [][]string {
	if perRow <= 0 {
		perRow = 1
	}
	var rows [][]string
	for start := 0; start < len(labels); start += perRow {
		end := start + perRow
		if end > len(labels) {
			end = len(labels)
		}
		rows = append(rows, labels[start:end])
	}
	return rows
}

func parsePositiveInt(text string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n <= 0 {
		return 0, model.Invalid("Нужно положительное целое число.")
	}
	return n, nil
}

func parsePercent(text string) (int, error) {
	raw := strings.TrimSuffix(strings.TrimSpace(text), "%")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || n > 100 {
		return 0, model.Invalid("Процент — целое число от 0 до 100.")
	}
	return n, nil
}

// parseIDOption extracts the numeric id from keyboard labels of the
// form "#12 · …" or from a bare "#12" / "12" typed by hand.
func parseIDOption(text string) (uint, error) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, "#")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return 0, model.Invalid("Не понял номер, выбери вариант кнопкой.")
	}
	id, err := strconv.ParseUint(fields[0], 10, 64)
	if err != nil || id == 0 {
		return 0, model.Invalid("Не понял номер, выбери вариант кнопкой.")
	}
	return uint(id), nil
}

// parseWeekdays reads a comma-separated list of ISO weekday numbers.
func parseWeekdays(text string) ([]int, error) {
	var days []int
	for _, part := range strings.Split(text, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 1 || n > 7 {
			return nil, model.Invalid("Дни недели — числа от 1 (Пн) до 7 (Вс) через запятую, например: 1,3,5.")
		}
		days = append(days, n)
	}
	if len(days) == 0 {
		return nil, model.Invalid("Укажи хотя бы один день недели или нажми «Пропустить».")
	}
	return days, nil
}
