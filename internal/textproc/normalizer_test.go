package textproc

import (
	"errors"
	"testing"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStopwordsFor(t *testing.T) {
	stops, err := StopwordsFor("ES")
	require.NoError(t, err)
	assert.True(t, stops.Contains("de"))
	assert.True(t, stops.Contains("más"))
	assert.False(t, stops.Contains("gobierno"))

	// 重音变体命中同一个停用词
	for _, w := range []string{"mas", "si", "sí", "se", "sé", "esta", "está", "tu", "tú", "el", "él"} {
		assert.True(t, stops.Contains(w), w)
	}

	_, err = StopwordsFor("es-MX")
	assert.NoError(t, err)

	_, err = StopwordsFor("fr")
	assert.Error(t, err)
}

func TestParseLanguage(t *testing.T) {
	tests := []struct {
		name    string
		want    string
		wantErr bool
	}{
		{"es", "es", false},
		{" Spanish ", "es", false},
		{"español", "es", false},
		{"es-MX", "es-MX", false},
		{"fr", "fr", false},
		{"not a language", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tag, err := ParseLanguage(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tag.String())
		})
	}
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "words and punctuation",
			text: "hola, mundo!",
			want: []string{"hola", ",", "mundo", "!"},
		},
		{
			name: "inner hyphen and numbers",
			text: "covid-19 cuesta 1.500,50 euros",
			want: []string{"covid-19", "cuesta", "1.500,50", "euros"},
		},
		{
			name: "ellipsis and inverted marks",
			text: "euros... ¿verdad?",
			want: []string{"euros", "...", "¿", "verdad", "?"},
		},
		{
			name: "trailing dot is separate",
			text: "fin.",
			want: []string{"fin", "."},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.text))
		})
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	n, err := NewNormalizer("es")
	require.NoError(t, err)

	assert.Equal(t, "gobierno anunció nuevas medidas .", n.Normalize("El Gobierno anunció nuevas medidas."))
	// 全部是停用词
	assert.Equal(t, "", n.Normalize("de la que el"))
	assert.Equal(t, "", n.Normalize(""))
	// 大写重音字母正确小写化
	assert.Equal(t, "árbol", n.Normalize("ÁRBOL"))

	// 停用词的重音变体同样被去除
	assert.Equal(t, n.Normalize("Más noticias falsas"), n.Normalize("Mas noticias falsas"))
	assert.Equal(t, n.Normalize("Sí hubo fraude"), n.Normalize("Si hubo fraude"))
	assert.Equal(t, n.Normalize("Sé la verdad"), n.Normalize("Se la verdad"))
	assert.Equal(t, "noticias falsas", n.Normalize("Mas noticias falsas"))
}

func TestNewNormalizer_Language(t *testing.T) {
	n, err := NewNormalizer("es-MX")
	require.NoError(t, err)
	assert.Equal(t, "es-MX", n.Language().String())

	n, err = NewNormalizer("spanish")
	require.NoError(t, err)
	assert.Equal(t, "es", n.Language().String())

	_, err = NewNormalizer("fr")
	assert.Error(t, err)
}

func TestNormalizer_Transform(t *testing.T) {
	n, err := NewNormalizer("spanish")
	require.NoError(t, err)
	assert.Equal(t, "normalize", n.Name())

	out, err := n.Transform([]string{"Hola Mundo", "", "La casa"})
	require.NoError(t, err)
	assert.Equal(t, []string{"hola mundo", "", "casa"}, out)

	t.Run("invalid utf8", func(t *testing.T) {
		_, err := n.Transform([]string{"ok", "\xff\xfe"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, models.ErrValidation))

		var stageErr *models.StageError
		require.True(t, errors.As(err, &stageErr))
		assert.Equal(t, "normalize", stageErr.Stage)
		assert.Equal(t, 1, stageErr.Index)
	})
}
