package artifact

import (
	"bufio"
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"time"

	"github.com/fyerfyer/news-classifier/internal/classifier"
	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/pipeline"
	"github.com/fyerfyer/news-classifier/internal/textproc"
	"github.com/klauspost/compress/zstd"
)

// magic 制品文件头
var magic = []byte("NCLF")

// formatVersion 编码格式版本，结构不兼容变更时递增
const formatVersion byte = 1

// Artifact 完整流水线的持久化单元
type Artifact struct {
	Version   int               // 模型版本，单调递增
	CreatedAt time.Time         // 生成时间
	Config    pipeline.Config   // 各阶段配置
	State     classifier.State  // 分类器状态
	Lexicon   map[string]string // 自定义词元词典
}

// FromPipeline 由流水线构建制品
func FromPipeline(p *pipeline.Pipeline, version int) Artifact {
	return Artifact{
		Version:   version,
		CreatedAt: time.Now().UTC(),
		Config:    p.Config(),
		State:     p.State(),
		Lexicon:   p.Lexicon(),
	}
}

// Pipeline 由制品重建流水线
func (a Artifact) Pipeline() (*pipeline.Pipeline, error) {
	if a.Config.NFeatures != a.State.NFeatures {
		return nil, models.NewValidationError("artifact v%d: config dimension %d does not match classifier dimension %d",
			a.Version, a.Config.NFeatures, a.State.NFeatures)
	}
	return pipeline.Restore(a.Config, textproc.Lexicon(a.Lexicon), a.State)
}

// Encode 编码制品：文件头 + zstd(gob(Artifact))
func Encode(w io.Writer, a Artifact) error {
	if _, err := w.Write(append(append([]byte{}, magic...), formatVersion)); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create zstd writer: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(a); err != nil {
		zw.Close()
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("flush artifact: %w", err)
	}
	return nil
}

// Decode 解码制品
func Decode(r io.Reader) (Artifact, error) {
	br := bufio.NewReader(r)
	header := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(br, header); err != nil {
		return Artifact{}, fmt.Errorf("read header: %w", err)
	}
	if !bytes.Equal(header[:len(magic)], magic) {
		return Artifact{}, fmt.Errorf("not a model artifact")
	}
	if header[len(magic)] != formatVersion {
		return Artifact{}, fmt.Errorf("unsupported artifact format %d", header[len(magic)])
	}

	zr, err := zstd.NewReader(br)
	if err != nil {
		return Artifact{}, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	var a Artifact
	if err := gob.NewDecoder(zr).Decode(&a); err != nil {
		return Artifact{}, fmt.Errorf("decode artifact: %w", err)
	}
	return a, nil
}

// Marshal 编码为字节切片
func Marshal(a Artifact) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, a); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
