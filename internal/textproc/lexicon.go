package textproc

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lexicon 词形→词元 映射
// 键和值都经过小写化与去重音处理
type Lexicon map[string]string

// LoadLexicon 从YAML文件加载自定义词元词典
//
// 文件格式：
//
//	lemmas:
//	  - lemma: elegir
//	    forms: [eligió, eligieron, elige]
//	  - lemma: vacuna
//	    forms: [vacunas]
func LoadLexicon(path string) (Lexicon, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon 解析YAML格式的词元词典
func ParseLexicon(data []byte) (Lexicon, error) {
	var doc struct {
		Lemmas []struct {
			Lemma string   `yaml:"lemma"`
			Forms []string `yaml:"forms"`
		} `yaml:"lemmas"`
	}

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}

	lex := make(Lexicon)
	for i, entry := range doc.Lemmas {
		lemma := foldKey(entry.Lemma)
		if lemma == "" {
			return nil, fmt.Errorf("parse lexicon: entry %d has empty lemma", i)
		}
		for _, form := range entry.Forms {
			if key := foldKey(form); key != "" {
				lex[key] = lemma
			}
		}
		// 词元本身也映射到自身，避免被规则再次改写
		lex[lemma] = lemma
	}

	return lex, nil
}

// Merge 合并词典，other中的条目覆盖已有条目
func (l Lexicon) Merge(other Lexicon) Lexicon {
	out := make(Lexicon, len(l)+len(other))
	for k, v := range l {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// foldKey 生成词典键：小写、去重音、去空白
func foldKey(s string) string {
	return StripAccents(strings.ToLower(strings.TrimSpace(s)))
}
