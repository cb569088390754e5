package labeltext

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/models"
)

func TestStem(t *testing.T) {
	cases := map[string]string{
		"12_AB3CD.jpg":    "AB3CD",
		"cam_01_XY9Z.png": "XY9Z",
		"plain.jpeg":      "plain",
		"noext":           "noext",
		"trailing_.jpg":   "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Stem(in), "Stem(%q)", in)
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		useCase models.UseCase
		want    Fields
	}{
		{"ocr", "scan_hello.png", models.UseCaseOCR, Fields{Text01: "hello"}},
		{"plate", "car_12B34567.jpg", models.UseCasePlate, Fields{Text01: "12", Text02: "B", Text03: "34567"}},
		{"plate short stem", "x_1.jpg", models.UseCasePlate, Fields{Text01: "1"}},
		{"plate multibyte", "12ب34567.jpg", models.UseCasePlate, Fields{Text01: "12", Text02: "ب", Text03: "34567"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Split(tt.file, tt.useCase)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f)
		})
	}
}

func TestSplitUnknownUseCase(t *testing.T) {
	_, err := Split("a.jpg", "barcode")
	assert.ErrorIs(t, err, apperr.ErrInvalidLabel)
}

func TestCompose(t *testing.T) {
	f := Fields{Text01: "12", Text02: "B", Text03: "345"}

	got, err := Compose(f, models.UseCasePlate)
	require.NoError(t, err)
	assert.Equal(t, "12B345", got)

	got, err = Compose(f, models.UseCaseOCR)
	require.NoError(t, err)
	assert.Equal(t, "12", got)

	_, err = Compose(f, "")
	assert.Error(t, err)
}

func TestCheckLength(t *testing.T) {
	assert.NoError(t, CheckLength("abc", 3), "at limit")
	assert.NoError(t, CheckLength("ابجد", 4), "runes, not bytes")
	assert.ErrorIs(t, CheckLength("abcd", 3), apperr.ErrLabelTooLong)
}

func TestOutputNameRoundTrip(t *testing.T) {
	name, err := OutputName(7, "AB123", "car_x.jpeg")
	require.NoError(t, err)
	assert.Equal(t, "7_AB123.jpeg", name)

	idx, text, ok := ParseOutputName(name)
	require.True(t, ok)
	assert.Equal(t, 7, idx)
	assert.Equal(t, "AB123", text)
}

func TestOutputNameRejects(t *testing.T) {
	for _, text := range []string{"", "a/b", `a\b`, ".."} {
		_, err := OutputName(1, text, "a.jpg")
		assert.ErrorIs(t, err, apperr.ErrInvalidLabel, "OutputName(%q)", text)
	}
}

func TestParseOutputNameNoMatch(t *testing.T) {
	for _, name := range []string{"a.jpg", "x_AB.jpg", "3_AB.txt", ".ocrlabel-tmp-1"} {
		_, _, ok := ParseOutputName(name)
		assert.False(t, ok, "ParseOutputName(%q)", name)
	}
}
