package dataset

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/gogs/chardet"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/transform"
)

// DefaultSeparator 语料CSV默认分隔符
const DefaultSeparator = ';'

// nullValues 被视为空值的单元格文本
var nullValues = map[string]struct{}{
	"": {}, "NA": {}, "N/A": {}, "n/a": {}, "NaN": {}, "nan": {}, "-NaN": {}, "-nan": {},
	"NULL": {}, "null": {}, "None": {}, "<NA>": {}, "#N/A": {}, "#NA": {},
}

// westernCharsets 接受的检测结果
var westernCharsets = map[string]struct{}{
	"ISO-8859-1": {}, "ISO-8859-9": {}, "ISO-8859-15": {}, "windows-1252": {},
	"UTF-16LE": {}, "UTF-16BE": {},
}

// ReadCSV 读取带表头的CSV语料
// 非UTF-8输入会先检测字符集并转码；缺失的单元格与空值标记为 Missing
func ReadCSV(r io.Reader, sep rune) (models.Table, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return models.Table{}, fmt.Errorf("read csv: %w", err)
	}

	data, err := toUTF8(raw)
	if err != nil {
		return models.Table{}, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return models.Table{}, models.NewValidationError("csv is empty")
	}
	if err != nil {
		return models.Table{}, models.NewValidationError("parse csv header: %v", err)
	}

	table := models.Table{Columns: make([]string, len(header))}
	for i, h := range header {
		table.Columns[i] = strings.TrimSpace(h)
	}

	for line := 2; ; line++ {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return models.Table{}, models.NewValidationError("parse csv line %d: %v", line, err)
		}

		rec := models.NewRecord()
		for i, col := range table.Columns {
			if i >= len(fields) {
				rec.SetMissing(col)
				continue
			}
			if _, null := nullValues[strings.TrimSpace(fields[i])]; null {
				rec.SetMissing(col)
				continue
			}
			rec.Set(col, fields[i])
		}
		table.Rows = append(table.Rows, rec)
	}

	return table, nil
}

// toUTF8 检测字符集并转换为UTF-8
func toUTF8(data []byte) ([]byte, error) {
	if utf8.Valid(data) {
		return data, nil
	}

	// 检测结果不在西文字符集内时按 windows-1252 解码
	charset := "windows-1252"
	if result, err := chardet.NewTextDetector().DetectBest(data); err == nil {
		if _, ok := westernCharsets[result.Charset]; ok {
			charset = result.Charset
		}
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, models.NewValidationError("unsupported csv charset %s", charset)
	}

	out, _, err := transform.Bytes(enc.NewDecoder(), data)
	if err != nil {
		return nil, models.NewValidationError("decode csv as %s: %v", charset, err)
	}
	return out, nil
}
