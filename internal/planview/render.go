package planview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"homework-planner/backend/internal/dto"
)

// 配色
var (
	colorPrimary = lipgloss.Color("#6C63FF")
	colorMuted   = lipgloss.Color("#666666")
	colorSuccess = lipgloss.Color("#2ECC71")
	colorWarning = lipgloss.Color("#F39C12")
	colorError   = lipgloss.Color("#E74C3C")
	colorSubtle  = lipgloss.Color("#414868")
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorPrimary)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorSubtle).
			Padding(0, 1)

	doneStyle = lipgloss.NewStyle().
			Foreground(colorSuccess)

	controlStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorError)

	warningStyle = lipgloss.NewStyle().
			Foreground(colorWarning)
)

var reasonLabels = map[string]string{
	"due_tomorrow":  "明天截止",
	"recently_done": "近期已完成",
	"budget":        "预算选入",
}

// RenderWorksheet 作业单 → 终端文本
func RenderWorksheet(ws *dto.WorksheetResponse, degraded bool, details string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(fmt.Sprintf("作业单 · %d · %s", ws.StudentID, ws.Today)))
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf(
		"预算 %s  规则占用 %s  剩余 %s  速度 %s",
		score(ws.Budget), score(ws.UsedByRule), score(ws.RemainingBudget), ws.WorkSpeedLabel,
	)))
	b.WriteString("\n")
	if degraded {
		b.WriteString(warningStyle.Render(fmt.Sprintf(
			"上游不可用，使用最近状态（空闲度: %s，作业: %s）%s",
			ws.AvailabilitySource, ws.HomeworkSource, detailSuffix(details),
		)))
		b.WriteString("\n")
	}

	b.WriteString(section("今日作业", ws.Allocated, true))
	b.WriteString(section("延后", ws.Deferred, false))
	if len(ws.UpcomingAssessments) > 0 {
		b.WriteString(section("近期测验", ws.UpcomingAssessments, false))
	}
	return b.String()
}

// RenderAvailability 空闲度 → 单行摘要
func RenderAvailability(a *dto.AvailabilityResponse) string {
	label := "今日"
	if a.DayLabel == "weekend" {
		label = "周末"
	}
	line := fmt.Sprintf("%s %s  本周 %s  来源 %s", label, score(a.DayScore), score(a.WeekScore), a.Source)
	return subtitleStyle.Render(line)
}

func section(title string, items []dto.HomeworkResponse, withReason bool) string {
	var rows []string
	rows = append(rows, titleStyle.Render(fmt.Sprintf("%s (%d)", title, len(items))))
	if len(items) == 0 {
		rows = append(rows, subtitleStyle.Render("无"))
	}
	for _, it := range items {
		rows = append(rows, homeworkLine(it, withReason))
	}
	return panelStyle.Render(lipgloss.JoinVertical(lipgloss.Left, rows...)) + "\n"
}

func homeworkLine(it dto.HomeworkResponse, withReason bool) string {
	mark := "[ ]"
	if it.IsDone {
		mark = doneStyle.Render("[x]")
	}
	subject := it.Subject
	if it.IsControl {
		subject = controlStyle.Render(subject + " ★")
	}
	line := fmt.Sprintf("%s %s  %s  分值 %s", mark, it.DueDate, subject, score(it.Score))
	if withReason {
		if label, ok := reasonLabels[it.Reason]; ok {
			line += "  " + subtitleStyle.Render(label)
		}
	}
	return line
}

func score(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}

func detailSuffix(details string) string {
	if details == "" {
		return ""
	}
	return " · " + details
}
