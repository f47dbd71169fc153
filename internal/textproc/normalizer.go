package textproc

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/fyerfyer/news-classifier/internal/models"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Normalizer 文本规范化阶段
// 小写化、分词并去除停用词，无状态、无需拟合
type Normalizer struct {
	lang      language.Tag // 小写化使用的语言规则
	stopwords Stopwords    // 停用词集合
}

// NewNormalizer 创建指定语言的规范化器
func NewNormalizer(lang string) (*Normalizer, error) {
	tag, err := ParseLanguage(lang)
	if err != nil {
		return nil, err
	}
	stops, err := StopwordsFor(lang)
	if err != nil {
		return nil, err
	}

	return &Normalizer{
		lang:      tag,
		stopwords: stops,
	}, nil
}

// Language 小写化使用的语言标签
func (n *Normalizer) Language() language.Tag {
	return n.lang
}

// Name 阶段名称
func (n *Normalizer) Name() string {
	return "normalize"
}

// Transform 批量规范化文本，输出与输入一一对应
func (n *Normalizer) Transform(texts []string) ([]string, error) {
	out := make([]string, len(texts))
	for i, text := range texts {
		if !utf8.ValidString(text) {
			return nil, &models.StageError{
				Stage: n.Name(),
				Field: "text",
				Index: i,
				Err:   models.NewValidationError("text is not valid UTF-8"),
			}
		}
		out[i] = n.Normalize(text)
	}
	return out, nil
}

// Normalize 规范化单条文本
// 过滤后为空的文本返回空字符串
func (n *Normalizer) Normalize(text string) string {
	// cases.Caser 有内部状态，不能在goroutine间共享
	lower := cases.Lower(n.lang).String(text)

	tokens := Tokenize(lower)
	kept := tokens[:0]
	for _, tok := range tokens {
		if n.stopwords.Contains(tok) {
			continue
		}
		kept = append(kept, tok)
	}

	return strings.Join(kept, " ")
}

// Tokenize 将文本切分为词元
// 词由字母/数字组成，允许词内的连字符和撇号；数字内允许小数点和千分位；
// 每个标点单独成为一个词元，连续的省略号合并为一个词元
func Tokenize(text string) []string {
	var tokens []string
	runes := []rune(text)
	n := len(runes)

	for i := 0; i < n; {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case isWordRune(r):
			start := i
			i++
			for i < n {
				if isWordRune(runes[i]) {
					i++
					continue
				}
				// 词内连接符：前后都必须是词字符
				if i+1 < n && isWordRune(runes[i+1]) && isInnerJoiner(runes[i], runes[i-1], runes[i+1]) {
					i += 2
					continue
				}
				break
			}
			tokens = append(tokens, string(runes[start:i]))

		case r == '.' && i+2 < n && runes[i+1] == '.' && runes[i+2] == '.':
			start := i
			for i < n && runes[i] == '.' {
				i++
			}
			tokens = append(tokens, string(runes[start:i]))

		default:
			tokens = append(tokens, string(r))
			i++
		}
	}

	return tokens
}

// isWordRune 判断字符是否属于词
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r) || r == '_'
}

// isInnerJoiner 判断词内连接符
// 连字符和撇号连接字母，小数点和逗号连接数字
func isInnerJoiner(r, prev, next rune) bool {
	switch r {
	case '-', '\'', '’':
		return true
	case '.', ',':
		return unicode.IsDigit(prev) && unicode.IsDigit(next)
	default:
		return false
	}
}
