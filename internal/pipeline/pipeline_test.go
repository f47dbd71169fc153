package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/fyerfyer/news-classifier/internal/textproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainingDocs() []models.Document {
	return []models.Document{
		{Title: "Gobierno aprueba presupuesto", Body: "El congreso aprobó el presupuesto anual de salud", Label: "0"},
		{Title: "Ministerio publica informe económico", Body: "El informe oficial muestra crecimiento económico", Label: "0"},
		{Title: "Banco central mantiene tasas", Body: "La entidad mantiene las tasas de interés estables", Label: "0"},
		{Title: "Limón cura el cáncer", Body: "Un remedio casero con limón cura todas las enfermedades", Label: "1"},
		{Title: "Extraterrestres controlan políticos", Body: "Los extraterrestres controlan secretamente a los políticos", Label: "1"},
	}
}

func fitted(t *testing.T) *Pipeline {
	t.Helper()
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	next, metrics, err := p.Fit(trainingDocs())
	require.NoError(t, err)
	assert.Equal(t, KindBatchSelfCheck, metrics.Kind)
	return next
}

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.NFeatures = 0
	assert.True(t, errors.Is(cfg.Validate(), models.ErrValidation))

	cfg = DefaultConfig()
	cfg.Language = "fr"
	_, err := New(cfg)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestPipeline_TrainedLabelPredicted(t *testing.T) {
	p := fitted(t)
	assert.Equal(t, []string{"0", "1"}, p.Classes())
	assert.Equal(t, 5, p.Samples())
	assert.Equal(t, map[string]int{"0": 3, "1": 2}, p.ClassDistribution())

	docs := trainingDocs()
	preds, err := p.Predict(docs)
	require.NoError(t, err)
	require.Len(t, preds, len(docs))

	for i, pred := range preds {
		assert.Equal(t, docs[i].Label, pred.Label, "document %d", i)
		assert.GreaterOrEqual(t, pred.Probability, 0.5)
		assert.InDelta(t, 1.0, pred.Distribution["0"]+pred.Distribution["1"], 1e-9)
	}
}

func TestPipeline_RetrainUnknownLabel(t *testing.T) {
	p := fitted(t)
	before := p.State()

	next, _, err := p.Retrain([]models.Document{
		{Title: "Nueva noticia", Body: "Texto cualquiera", Label: "0"},
		{Title: "Otra noticia", Body: "Texto distinto", Label: "2"},
	})
	assert.Nil(t, next)
	assert.True(t, errors.Is(err, models.ErrValidation))
	assert.Equal(t, before, p.State())
}

func TestPipeline_EmptyDocument(t *testing.T) {
	p := fitted(t)

	preds, err := p.Predict([]models.Document{{Title: "", Body: ""}})
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Contains(t, p.Classes(), preds[0].Label)
	assert.InDelta(t, 1.0, preds[0].Distribution["0"]+preds[0].Distribution["1"], 1e-9)
}

func TestPipeline_CaseAndAccentVariants(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	vectors, err := p.Preprocess([]models.Document{
		{Title: "VACUNAS Peligrosas", Body: "Según los EXPERTOS"},
		{Title: "vacunas peligrosas", Body: "según los expertos"},
		{Title: "Vacúnas peligrosás", Body: "Segun los Expertos"},
	})
	require.NoError(t, err)
	assert.NotZero(t, vectors[0].Len())
	assert.Equal(t, vectors[0], vectors[1])
	assert.Equal(t, vectors[0], vectors[2])

	// 一个重音变体是停用词时另一个也必须被去除
	pairs := [][2]string{
		{"Más noticias falsas", "Mas noticias falsas"},
		{"Sí hubo fraude", "Si hubo fraude"},
		{"Sé la verdad", "Se la verdad"},
		{"Él está aquí", "El esta aqui"},
	}
	for _, pair := range pairs {
		got, err := p.Preprocess([]models.Document{{Title: pair[0]}, {Title: pair[1]}})
		require.NoError(t, err)
		assert.Equal(t, got[0], got[1], "%q vs %q", pair[0], pair[1])
	}
}

func TestPipeline_PreprocessParity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BatchSize = 2
	cfg.Workers = 3
	p, err := New(cfg)
	require.NoError(t, err)

	var docs []models.Document
	for i := 0; i < 12; i++ {
		d := trainingDocs()[i%5]
		d.Body = fmt.Sprintf("%s número %d", d.Body, i)
		docs = append(docs, d)
	}

	batch, err := p.Preprocess(docs)
	require.NoError(t, err)
	for i, d := range docs {
		single, err := p.Preprocess([]models.Document{d})
		require.NoError(t, err)
		assert.Equal(t, single[0], batch[i], "document %d", i)
	}
}

func TestPipeline_StageErrorCarriesField(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)

	_, err = p.Preprocess([]models.Document{{Title: "ok", Body: "ok"}, {Title: "ok", Body: "\xff"}})
	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "normalize", stageErr.Stage)
	assert.Equal(t, "body", stageErr.Field)
	assert.Equal(t, 1, stageErr.Index)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestPipeline_StateMachine(t *testing.T) {
	p, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.False(t, p.Initialized())

	_, err = p.Predict([]models.Document{{Title: "a", Body: "b"}})
	assert.True(t, errors.Is(err, models.ErrUninitialized))

	_, _, err = p.Retrain(trainingDocs())
	assert.True(t, errors.Is(err, models.ErrUninitialized))

	_, _, err = p.Fit(nil)
	assert.True(t, errors.Is(err, models.ErrValidation))

	unlabeled := trainingDocs()
	unlabeled[2].Label = ""
	_, _, err = p.Fit(unlabeled)
	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "label", stageErr.Field)
	assert.Equal(t, 2, stageErr.Index)

	next, _, err := p.Fit(trainingDocs())
	require.NoError(t, err)
	assert.False(t, p.Initialized(), "receiver is not mutated")

	_, _, err = next.Fit(trainingDocs())
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestPipeline_RetrainCopyOnWrite(t *testing.T) {
	p := fitted(t)

	next, metrics, err := p.Retrain([]models.Document{
		{Title: "Vacuna aprobada", Body: "La agencia sanitaria aprobó la vacuna", Label: "0"},
		{Title: "Vacuna contiene chips", Body: "La vacuna contiene chips de rastreo", Label: "1"},
	})
	require.NoError(t, err)
	assert.Equal(t, KindBatchSelfCheck, metrics.Kind)
	assert.Equal(t, 2, metrics.Samples)
	assert.Len(t, metrics.PerClass, 2)

	assert.Equal(t, 5, p.Samples())
	assert.Equal(t, 7, next.Samples())
	assert.Equal(t, p.Classes(), next.Classes())
}

func TestPipeline_Restore(t *testing.T) {
	lex, err := textproc.ParseLexicon([]byte("lemmas:\n  - lemma: curar\n    forms: [cura]\n"))
	require.NoError(t, err)

	p, err := New(DefaultConfig(), WithLexicon(lex))
	require.NoError(t, err)
	p, _, err = p.Fit(trainingDocs())
	require.NoError(t, err)

	restored, err := Restore(p.Config(), p.Lexicon(), p.State())
	require.NoError(t, err)

	query := []models.Document{{Title: "El limón cura", Body: "remedio para enfermedades"}}
	want, err := p.Predict(query)
	require.NoError(t, err)
	got, err := restored.Predict(query)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	cfg := p.Config()
	cfg.NFeatures = 1000
	_, err = Restore(cfg, p.Lexicon(), p.State())
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestPipeline_Evaluate(t *testing.T) {
	p := fitted(t)

	m, err := p.Evaluate(trainingDocs(), KindHoldout)
	require.NoError(t, err)
	assert.Equal(t, KindHoldout, m.Kind)
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 1.0, m.F1)
}

func TestComputeMetrics(t *testing.T) {
	m := ComputeMetrics(KindBatchSelfCheck,
		[]string{"0", "1"},
		[]string{"0", "0", "1", "1"},
		[]string{"0", "1", "1", "1"},
	)
	assert.Equal(t, 4, m.Samples)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-9)
	assert.InDelta(t, (1.0+2.0/3.0)/2, m.Precision, 1e-9)
	assert.InDelta(t, 0.75, m.Recall, 1e-9)
	assert.InDelta(t, (2.0/3.0+0.8)/2, m.F1, 1e-9)
	assert.Equal(t, 2, m.PerClass["0"].Support)

	t.Run("class without samples counts as zero", func(t *testing.T) {
		m := ComputeMetrics(KindBatchSelfCheck, []string{"0", "1", "2"}, []string{"0", "1"}, []string{"0", "1"})
		assert.InDelta(t, 2.0/3.0, m.Precision, 1e-9)
		assert.Equal(t, 0.0, m.PerClass["2"].F1)
	})

	t.Run("empty batch", func(t *testing.T) {
		m := ComputeMetrics(KindBatchSelfCheck, []string{"0"}, nil, nil)
		assert.Equal(t, 0, m.Samples)
		assert.Equal(t, 0.0, m.F1)
	})
}
