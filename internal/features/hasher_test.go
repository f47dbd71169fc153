package features

import (
	"errors"
	"math"
	"testing"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasher(t *testing.T) {
	h, err := NewHasher(DefaultFeatures)
	require.NoError(t, err)
	assert.Equal(t, 5000, h.Dim())
	assert.Equal(t, "hash", h.Name())

	for _, n := range []int{0, -1} {
		_, err := NewHasher(n)
		assert.True(t, errors.Is(err, models.ErrValidation), "n=%d", n)
	}
}

func TestHasher_Bucket(t *testing.T) {
	// MurmurHash3 x86_32 种子0 的参考值：
	// hello=0x248bfa47, test=0xba6bd213 (有符号为负)
	tests := []struct {
		token string
		n     int
		want  int
	}{
		{"hello", 5000, 3351},
		{"hello", 16, 7},
		{"test", 5000, 3989},
		{"test", 16, 13},
		{"noticia", 5000, 4803},
		{"falsa", 5000, 2262},
	}

	for _, tt := range tests {
		h, err := NewHasher(tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, h.Bucket(tt.token), "%s mod %d", tt.token, tt.n)
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("el covid-19 y la vacuna_x son ñandú a 2024 Árbol")
	assert.Equal(t, []string{"el", "covid", "la", "son", "ñandú", "Árbol"}, got)

	assert.Empty(t, Tokens(""))
	assert.Empty(t, Tokens("a 1 ! ?"))
	// 含有非允许字母的词整体丢弃
	assert.Empty(t, Tokens("straße"))
}

func TestHasher_Vectorize(t *testing.T) {
	h, err := NewHasher(DefaultFeatures)
	require.NoError(t, err)

	vec := h.Vectorize("noticia falsa noticia")
	assert.Equal(t, 5000, vec.Dim)
	assert.Equal(t, []int{2262, 4803}, vec.Indices)
	require.Len(t, vec.Values, 2)
	assert.InDelta(t, 1/math.Sqrt(5), vec.Values[0], 1e-12)
	assert.InDelta(t, 2/math.Sqrt(5), vec.Values[1], 1e-12)
	assert.InDelta(t, 1.0, vec.Norm(), 1e-12)
	assert.NoError(t, vec.Validate(5000))

	dense := vec.Dense()
	assert.Len(t, dense, 5000)
	assert.InDelta(t, 2/math.Sqrt(5), dense[4803], 1e-12)

	t.Run("empty text yields zero vector", func(t *testing.T) {
		empty := h.Vectorize("")
		assert.Equal(t, 5000, empty.Dim)
		assert.Equal(t, 0, empty.Len())
		assert.Equal(t, 0.0, empty.Norm())
		assert.NoError(t, empty.Validate(5000))
	})

	t.Run("deterministic across instances", func(t *testing.T) {
		other, err := NewHasher(DefaultFeatures)
		require.NoError(t, err)
		text := "gobierno anuncio nueva medida contra vacuna"
		assert.Equal(t, h.Vectorize(text), other.Vectorize(text))
	})
}

func TestHasher_Transform(t *testing.T) {
	h, err := NewHasher(64)
	require.NoError(t, err)

	docs := []models.Document{
		{Title: "noticia", Body: "falsa"},
		{Title: "", Body: ""},
	}
	vecs, err := h.Transform(docs)
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, h.Vectorize("noticia falsa"), vecs[0])
	assert.Equal(t, 0, vecs[1].Len())

	_, err = h.Transform([]models.Document{{Title: "ok"}, {Title: "\xff"}})
	var stageErr *models.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, "hash", stageErr.Stage)
	assert.Equal(t, 1, stageErr.Index)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestVector_Validate(t *testing.T) {
	assert.Error(t, Vector{Dim: 4}.Validate(5))
	assert.Error(t, Vector{Dim: 4, Indices: []int{1}, Values: nil}.Validate(4))
	assert.Error(t, Vector{Dim: 4, Indices: []int{2, 1}, Values: []float64{1, 1}}.Validate(4))
	assert.Error(t, Vector{Dim: 4, Indices: []int{4}, Values: []float64{1}}.Validate(4))
	assert.Error(t, Vector{Dim: 4, Indices: []int{0}, Values: []float64{-1}}.Validate(4))
	assert.NoError(t, Vector{Dim: 4, Indices: []int{0, 3}, Values: []float64{0.5, 2}}.Validate(4))
}
