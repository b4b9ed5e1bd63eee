package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"homework-planner/backend/internal/dto"
	apperr "homework-planner/backend/pkg/errors"
)

// ── 导出模块业务错误 ──

var ErrExportGenerateFail = errors.New("生成 Excel 文件失败")

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response。
// 上游不可用时按降级结果照常导出。
type ExportService interface {
	// ExportWorksheet 导出当日作业单为 Excel
	ExportWorksheet(ctx context.Context, sc StudentContext) (*bytes.Buffer, string, error)
}

type exportService struct {
	worksheet WorksheetService
	logger    *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(worksheet WorksheetService, logger *zap.Logger) ExportService {
	return &exportService{worksheet: worksheet, logger: logger}
}

// 分区 Sheet 名
const (
	sheetAllocated = "今日作业"
	sheetDeferred  = "延后"
	sheetUpcoming  = "近期测验"
)

var homeworkHeaders = []string{"截止日期", "科目", "科目代码", "测验", "已完成", "科目权重", "测验倍数", "得分", "选入原因"}

// ═══════════════════════════════════════════════════════════
// ExportWorksheet — 导出作业单为 Excel
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - Sheet "今日作业"：标题行（日期 + 预算），表头，已分配作业
//   - Sheet "延后" / "近期测验"：同样的列
//
// 返回值：buf（Excel 内容）, filename（建议文件名）, error

func (s *exportService) ExportWorksheet(ctx context.Context, sc StudentContext) (*bytes.Buffer, string, error) {
	ws, err := s.worksheet.Compute(ctx, sc)
	if err != nil && (ws == nil || !errors.Is(err, apperr.ErrUpstreamUnavailable)) {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})

	title := fmt.Sprintf("%s 作业单 · 预算 %.1f · 已用 %.1f · 剩余 %.1f",
		ws.AnchorDate, ws.Budget, ws.UsedByRule, ws.RemainingBudget)

	sections := []struct {
		name  string
		items []dto.HomeworkResponse
	}{
		{sheetAllocated, ws.Allocated},
		{sheetDeferred, ws.Deferred},
		{sheetUpcoming, ws.UpcomingAssessments},
	}
	for i, sec := range sections {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sec.name); err != nil {
				s.logger.Error("重命名 Sheet 失败", zap.Error(err))
				return nil, "", ErrExportGenerateFail
			}
		} else if _, err := f.NewSheet(sec.name); err != nil {
			s.logger.Error("创建 Sheet 失败", zap.Error(err))
			return nil, "", ErrExportGenerateFail
		}
		writeHomeworkSheet(f, sec.name, title, sec.items, headerStyle)
	}
	f.SetActiveSheet(0)

	// 写入 buffer
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, "", ErrExportGenerateFail
	}

	filename := fmt.Sprintf("作业单_%d_%s.xlsx", sc.StudentID, ws.AnchorDate)
	return buf, filename, nil
}

// writeHomeworkSheet 标题行 + 表头 + 数据行
func writeHomeworkSheet(f *excelize.File, sheet, title string, items []dto.HomeworkResponse, headerStyle int) {
	last := colName(len(homeworkHeaders) - 1)

	f.SetColWidth(sheet, "A", "A", 12)
	f.SetColWidth(sheet, "B", "B", 24)
	f.SetColWidth(sheet, "C", last, 12)

	f.SetCellValue(sheet, "A1", title)
	f.MergeCell(sheet, "A1", cell(last, 1))
	f.SetCellStyle(sheet, "A1", "A1", headerStyle)

	row := 2
	for i, h := range homeworkHeaders {
		f.SetCellValue(sheet, cell(colName(i), row), h)
	}
	f.SetCellStyle(sheet, cell("A", row), cell(last, row), headerStyle)

	row = 3
	for _, h := range items {
		values := []interface{}{
			h.DueDate,
			h.Subject,
			h.SubjectCode,
			yesNo(h.IsControl),
			yesNo(h.IsDone),
			h.SubjectWeight,
			h.ControlWeight,
			h.Score,
			reasonLabel(h.Reason),
		}
		for i, v := range values {
			f.SetCellValue(sheet, cell(colName(i), row), v)
		}
		row++
	}
	if len(items) == 0 {
		f.SetCellValue(sheet, cell("A", row), "-")
	}
}

// ── 辅助函数 ──

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func yesNo(b bool) string {
	if b {
		return "是"
	}
	return "否"
}

func reasonLabel(reason string) string {
	switch reason {
	case "due_tomorrow":
		return "明天截止"
	case "recently_done":
		return "近期已完成"
	case "budget":
		return "预算选入"
	default:
		return ""
	}
}
