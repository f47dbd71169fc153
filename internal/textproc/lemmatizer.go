package textproc

import (
	"strings"
	"sync"
	"unicode"

	"github.com/gammazero/workerpool"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Lemmatizer 词元化阶段
// 将每个词还原为词典形式，丢弃标点，最后去除重音得到ASCII文本
type Lemmatizer struct {
	lexicon   Lexicon // 自定义词典（优先于内置不规则词表）
	batchSize int     // 每批文本数量
	workers   int     // 并行工作线程数
}

// LemmatizerOption 词元化器配置选项
type LemmatizerOption func(*Lemmatizer)

// WithLexicon 设置自定义词元词典
func WithLexicon(lex Lexicon) LemmatizerOption {
	return func(l *Lemmatizer) {
		l.lexicon = lex
	}
}

// WithBatchSize 设置批处理大小
func WithBatchSize(size int) LemmatizerOption {
	return func(l *Lemmatizer) {
		if size > 0 {
			l.batchSize = size
		}
	}
}

// WithWorkers 设置并行工作线程数
func WithWorkers(n int) LemmatizerOption {
	return func(l *Lemmatizer) {
		if n > 0 {
			l.workers = n
		}
	}
}

// NewLemmatizer 创建词元化器
func NewLemmatizer(opts ...LemmatizerOption) *Lemmatizer {
	l := &Lemmatizer{
		lexicon:   Lexicon{},
		batchSize: 500,
		workers:   4,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name 阶段名称
func (l *Lemmatizer) Name() string {
	return "lemmatize"
}

// Lexicon 返回自定义词典（用于持久化）
func (l *Lemmatizer) Lexicon() Lexicon {
	return l.lexicon
}

// Transform 批量词元化
// 文本按批次分配给工作池处理，结果按下标写回，与逐条处理的输出一致
func (l *Lemmatizer) Transform(texts []string) ([]string, error) {
	out := make([]string, len(texts))
	if len(texts) <= l.batchSize || l.workers <= 1 {
		for i, text := range texts {
			out[i] = l.Lemmatize(text)
		}
		return out, nil
	}

	wp := workerpool.New(l.workers)
	var wg sync.WaitGroup
	for start := 0; start < len(texts); start += l.batchSize {
		end := start + l.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end // 捕获循环变量
		wg.Add(1)
		wp.Submit(func() {
			defer wg.Done()
			for i := start; i < end; i++ {
				out[i] = l.Lemmatize(texts[i])
			}
		})
	}
	wg.Wait()
	wp.StopWait()

	return out, nil
}

// Lemmatize 词元化单条已规范化的文本
func (l *Lemmatizer) Lemmatize(text string) string {
	fields := strings.Fields(text)
	lemmas := make([]string, 0, len(fields))
	for _, tok := range fields {
		if isPunct(tok) {
			continue
		}
		lemmas = append(lemmas, l.lemma(tok))
	}
	return StripAccents(strings.Join(lemmas, " "))
}

// lemma 求单个词的词元
// 查找顺序：自定义词典 → 内置不规则词表 → 动词变位规则 → 名词复数规则
func (l *Lemmatizer) lemma(token string) string {
	key := foldKey(token)
	if key == "" {
		return key
	}

	if lemma, ok := l.lexicon[key]; ok {
		return lemma
	}
	if lemma, ok := irregularForms[key]; ok {
		return lemma
	}

	// 含数字或其他符号的词不做变形
	for _, r := range key {
		if !unicode.IsLetter(r) && r != '-' {
			return key
		}
	}
	if len(key) <= 3 {
		return key
	}

	if lemma, ok := verbLemma(key); ok {
		return lemma
	}
	return nounLemma(key)
}

// isPunct 判断词元是否完全由标点组成
func isPunct(token string) bool {
	for _, r := range token {
		if !unicode.IsPunct(r) {
			return false
		}
	}
	return token != ""
}

// StripAccents NFKD分解后去除组合符号和所有非ASCII字符
func StripAccents(s string) string {
	// transform.Chain 有内部状态，每次调用单独创建
	t := transform.Chain(
		norm.NFKD,
		runes.Remove(runes.In(unicode.Mn)),
		runes.Remove(runes.Predicate(func(r rune) bool { return r > unicode.MaxASCII })),
	)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
