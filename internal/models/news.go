package models

import (
	"strings"
)

// Document 新闻文档
// 由标题和正文组成，训练/重训练时携带标签
type Document struct {
	Title string `json:"title"`           // 新闻标题
	Body  string `json:"body"`            // 新闻正文
	Label string `json:"label,omitempty"` // 类别标签，空字符串表示未标注
}

// HasLabel 是否携带标签
func (d Document) HasLabel() bool {
	return d.Label != ""
}

// Record 原始表格数据中的一行
// Values保存单元格文本，Missing标记为空值(NULL/NaN)的列
type Record struct {
	Values  map[string]string
	Missing map[string]bool
}

// NewRecord 创建一行记录
func NewRecord() Record {
	return Record{
		Values:  make(map[string]string),
		Missing: make(map[string]bool),
	}
}

// Get 读取列值，第二个返回值表示该值是否存在且非空值
func (r Record) Get(column string) (string, bool) {
	if r.Missing[column] {
		return "", false
	}
	v, ok := r.Values[column]
	return v, ok
}

// Set 设置列值
func (r Record) Set(column, value string) {
	r.Values[column] = value
	delete(r.Missing, column)
}

// SetMissing 将列标记为空值
func (r Record) SetMissing(column string) {
	r.Values[column] = ""
	r.Missing[column] = true
}

// Clone 深拷贝一行记录
func (r Record) Clone() Record {
	out := Record{
		Values:  make(map[string]string, len(r.Values)),
		Missing: make(map[string]bool, len(r.Missing)),
	}
	for k, v := range r.Values {
		out.Values[k] = v
	}
	for k, v := range r.Missing {
		out.Missing[k] = v
	}
	return out
}

// Table 原始表格数据
type Table struct {
	Columns []string // 列名，保持输入顺序
	Rows    []Record // 数据行
}

// Column 按候选名称（不区分大小写）查找列名
func (t *Table) Column(candidates ...string) (string, bool) {
	for _, c := range candidates {
		for _, col := range t.Columns {
			if strings.EqualFold(col, c) {
				return col, true
			}
		}
	}
	return "", false
}

// Prediction 单条预测结果
type Prediction struct {
	Label        string             `json:"label"`         // 预测类别
	Probability  float64            `json:"probability"`   // 预测类别的概率
	Distribution map[string]float64 `json:"distribution"`  // 全部类别的概率分布
	ModelVersion int                `json:"model_version"` // 产生该预测的模型版本
}
