package dataset

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fyerfyer/news-classifier/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"
)

const sampleCSV = "ID;Fecha;Titulo;Descripcion;Label\n" +
	"1;2020-01-01;Vacuna segura;Expertos confirman la eficacia;1\n" +
	"2;2020-01-02;Vacuna segura;Texto duplicado;1\n" +
	"3;2020-01-03;Sin cuerpo;;0\n" +
	"4;2020-01-04;Cura milagrosa;El limón cura todo;0\n" +
	"5;2020-01-05;Sin etiqueta;Cuerpo presente;NaN\n" +
	"6;2020-01-06;Fila corta\n"

func TestReadCSV(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), DefaultSeparator)
	require.NoError(t, err)

	assert.Equal(t, []string{"ID", "Fecha", "Titulo", "Descripcion", "Label"}, table.Columns)
	require.Len(t, table.Rows, 6)

	v, ok := table.Rows[0].Get("Titulo")
	assert.True(t, ok)
	assert.Equal(t, "Vacuna segura", v)

	_, ok = table.Rows[2].Get("Descripcion")
	assert.False(t, ok, "empty cell is missing")
	_, ok = table.Rows[4].Get("Label")
	assert.False(t, ok, "NaN is missing")
	_, ok = table.Rows[5].Get("Label")
	assert.False(t, ok, "absent trailing cell is missing")
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), DefaultSeparator)
	assert.True(t, errors.Is(err, models.ErrValidation))

	_, err = ReadCSV(strings.NewReader("a;b\n\"x;y\n"), DefaultSeparator)
	// LazyQuotes 下未闭合的引号读到文件末尾
	assert.NoError(t, err)
}

func TestReadCSV_BOMAndLatin1(t *testing.T) {
	t.Run("utf8 bom", func(t *testing.T) {
		table, err := ReadCSV(strings.NewReader("\ufeffTitulo;Descripcion\nA;B\n"), DefaultSeparator)
		require.NoError(t, err)
		assert.Equal(t, "Titulo", table.Columns[0])
	})

	t.Run("latin1", func(t *testing.T) {
		text := "Titulo;Descripcion;Label\n" +
			"Canción de la campaña electoral;La información publicada según fuentes oficiales no es cierta;0\n" +
			"Economía en crecimiento;El país registró más empleo durante el año pasado según el informe;1\n"
		encoded, err := charmap.ISO8859_1.NewEncoder().Bytes([]byte(text))
		require.NoError(t, err)

		table, err := ReadCSV(bytes.NewReader(encoded), DefaultSeparator)
		require.NoError(t, err)
		require.Len(t, table.Rows, 2)
		v, _ := table.Rows[0].Get("Titulo")
		assert.Equal(t, "Canción de la campaña electoral", v)
	})
}

func TestProfile(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), DefaultSeparator)
	require.NoError(t, err)
	before := table.Rows[0].Clone()

	docs, report := Profile(table)

	assert.Equal(t, []models.Document{
		{Title: "Vacuna segura", Body: "Expertos confirman la eficacia", Label: "1"},
		{Title: "Cura milagrosa", Body: "El limón cura todo", Label: "0"},
	}, docs)

	assert.Equal(t, 6, report.InputRows)
	assert.Equal(t, 3, report.DroppedMissing)
	assert.Equal(t, 1, report.DroppedDuplicates)
	assert.Equal(t, 2, report.OutputRows)
	assert.Equal(t, []string{"ID", "Fecha"}, report.DroppedColumns)
	assert.Empty(t, report.MissingColumns)

	// 输入不被修改
	assert.Equal(t, before, table.Rows[0])
	assert.Len(t, table.Columns, 5)
}

func TestProfile_OptionalColumns(t *testing.T) {
	table, err := ReadCSV(strings.NewReader("title;body\nA;x\nB;y\nA;z\n"), ',')
	require.NoError(t, err)
	// 分隔符不匹配时整行成为一列
	docs, report := Profile(table)
	assert.Empty(t, docs)
	assert.Equal(t, 3, report.DroppedMissing)
	assert.NotEmpty(t, report.MissingColumns)

	table, err = ReadCSV(strings.NewReader("title;body\nA;x\nB;y\nA;z\n"), DefaultSeparator)
	require.NoError(t, err)
	docs, report = Profile(table)
	require.Len(t, docs, 2)
	assert.False(t, docs[0].HasLabel())
	assert.Equal(t, 1, report.DroppedDuplicates)
	assert.Empty(t, report.DroppedColumns)
}

func TestToDocuments(t *testing.T) {
	table, err := ReadCSV(strings.NewReader(sampleCSV), DefaultSeparator)
	require.NoError(t, err)

	docs, missing := ToDocuments(table)
	assert.Empty(t, missing)

	// 每一行都保留，重复标题与空值不被丢弃，标签被忽略
	assert.Equal(t, []models.Document{
		{Title: "Vacuna segura", Body: "Expertos confirman la eficacia"},
		{Title: "Vacuna segura", Body: "Texto duplicado"},
		{Title: "Sin cuerpo", Body: ""},
		{Title: "Cura milagrosa", Body: "El limón cura todo"},
		{Title: "Sin etiqueta", Body: "Cuerpo presente"},
		{Title: "Fila corta", Body: ""},
	}, docs)

	t.Run("missing columns", func(t *testing.T) {
		table, err := ReadCSV(strings.NewReader("foo;Descripcion\n1;2\n"), DefaultSeparator)
		require.NoError(t, err)
		docs, missing := ToDocuments(table)
		assert.Nil(t, docs)
		assert.Equal(t, []string{"Titulo"}, missing)
	})
}

func TestTrainTestSplit(t *testing.T) {
	docs := make([]models.Document, 10)
	for i := range docs {
		docs[i] = models.Document{Title: string(rune('a' + i)), Body: "x", Label: "0"}
	}

	train, test, err := TrainTestSplit(docs, 0.2, 42)
	require.NoError(t, err)
	assert.Len(t, train, 8)
	assert.Len(t, test, 2)

	train2, test2, err := TrainTestSplit(docs, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	seen := map[string]bool{}
	for _, d := range append(append([]models.Document{}, train...), test...) {
		seen[d.Title] = true
	}
	assert.Len(t, seen, 10)
	// 输入顺序不变
	assert.Equal(t, "a", docs[0].Title)

	_, test, err = TrainTestSplit(docs, 0, 1)
	require.NoError(t, err)
	assert.Empty(t, test)

	_, _, err = TrainTestSplit(docs, 1, 1)
	assert.True(t, errors.Is(err, models.ErrValidation))

	assert.Equal(t, []string{"0", "0"}, Labels(docs[:2]))
}
