package dataset

import (
	"strings"

	"github.com/fyerfyer/news-classifier/internal/models"
)

var (
	// DroppedColumnNames 下游不需要的标识/日期列
	DroppedColumnNames = []string{"ID", "Fecha", "date"}
	// TitleColumnNames 标题列候选名称
	TitleColumnNames = []string{"Titulo", "Título", "title"}
	// BodyColumnNames 正文列候选名称
	BodyColumnNames = []string{"Descripcion", "Descripción", "body", "description"}
	// LabelColumnNames 标签列候选名称
	LabelColumnNames = []string{"Label", "label"}
)

// ProfileReport 数据清理统计
type ProfileReport struct {
	InputRows         int      `json:"input_rows"`
	DroppedMissing    int      `json:"dropped_missing"`
	DroppedDuplicates int      `json:"dropped_duplicates"`
	OutputRows        int      `json:"output_rows"`
	DroppedColumns    []string `json:"dropped_columns"`
	MissingColumns    []string `json:"missing_columns,omitempty"`
}

// Profile 对原始表格做结构化清理
//
// 1. 去掉标识列与日期列
// 2. 丢弃标题、正文（以及存在标签列时的标签）为空值的行
// 3. 按标题去重，保留首次出现的行
//
// 输入表格不会被修改；缺少可选列时对应步骤不做任何处理
func Profile(table models.Table) ([]models.Document, ProfileReport) {
	report := ProfileReport{InputRows: len(table.Rows)}

	for _, name := range DroppedColumnNames {
		if col, ok := table.Column(name); ok {
			report.DroppedColumns = append(report.DroppedColumns, col)
		}
	}

	titleCol, hasTitle := table.Column(TitleColumnNames...)
	bodyCol, hasBody := table.Column(BodyColumnNames...)
	labelCol, hasLabel := table.Column(LabelColumnNames...)
	if !hasTitle {
		report.MissingColumns = append(report.MissingColumns, TitleColumnNames[0])
	}
	if !hasBody {
		report.MissingColumns = append(report.MissingColumns, BodyColumnNames[0])
	}

	seen := make(map[string]struct{}, len(table.Rows))
	docs := make([]models.Document, 0, len(table.Rows))
	for _, row := range table.Rows {
		title, okTitle := presentValue(row, titleCol, hasTitle)
		body, okBody := presentValue(row, bodyCol, hasBody)
		label, okLabel := "", true
		if hasLabel {
			label, okLabel = presentValue(row, labelCol, true)
		}

		if !okTitle || !okBody || !okLabel {
			report.DroppedMissing++
			continue
		}

		if _, dup := seen[title]; dup {
			report.DroppedDuplicates++
			continue
		}
		seen[title] = struct{}{}

		docs = append(docs, models.Document{
			Title: title,
			Body:  body,
			Label: label,
		})
	}

	report.OutputRows = len(docs)
	return docs, report
}

// presentValue 读取非空单元格，仅含空白的单元格视为空值
func presentValue(row models.Record, column string, exists bool) (string, bool) {
	if !exists {
		return "", false
	}
	v, ok := row.Get(column)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

// ToDocuments 将待预测的表格逐行转换为文档，不做任何过滤
// 输出与数据行一一对应；空值或缺失的单元格视为空字符串。
// 第二个返回值列出缺少的标题/正文列，非空时输出为nil
func ToDocuments(table models.Table) ([]models.Document, []string) {
	titleCol, hasTitle := table.Column(TitleColumnNames...)
	bodyCol, hasBody := table.Column(BodyColumnNames...)

	var missing []string
	if !hasTitle {
		missing = append(missing, TitleColumnNames[0])
	}
	if !hasBody {
		missing = append(missing, BodyColumnNames[0])
	}
	if len(missing) > 0 {
		return nil, missing
	}

	docs := make([]models.Document, len(table.Rows))
	for i, row := range table.Rows {
		title, _ := row.Get(titleCol)
		body, _ := row.Get(bodyCol)
		docs[i] = models.Document{
			Title: strings.TrimSpace(title),
			Body:  strings.TrimSpace(body),
		}
	}
	return docs, nil
}
