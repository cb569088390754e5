// Package labeltext maps between image filenames, the label fields shown to
// the labeler and the names of labeled copies.
package labeltext

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/starford/ocrlabel/internal/apperr"
	"github.com/starford/ocrlabel/internal/models"
)

var outputRe = regexp.MustCompile(`^(\d+)_(.*)(\.jpg|\.jpeg|\.png)$`)

// Fields are the three input boxes of the labeling form. The OCR layout uses
// only Text01; the plate layout splits a plate into two letters, one
// separator character and the remainder.
type Fields struct {
	Text01 string `json:"text_01"`
	Text02 string `json:"text_02"`
	Text03 string `json:"text_03"`
}

// Stem returns the part of a filename after the last underscore, without extension.
func Stem(filename string) string {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	if i := strings.LastIndex(base, "_"); i >= 0 {
		return base[i+1:]
	}
	return base
}

// Split pre-fills the form fields from an image filename.
func Split(filename string, uc models.UseCase) (Fields, error) {
	text := Stem(filename)
	switch uc {
	case models.UseCaseOCR:
		return Fields{Text01: text}, nil
	case models.UseCasePlate:
		r := []rune(text)
		return Fields{
			Text01: string(r[:min(2, len(r))]),
			Text02: string(r[min(2, len(r)):min(3, len(r))]),
			Text03: string(r[min(3, len(r)):]),
		}, nil
	default:
		return Fields{}, fmt.Errorf("labeltext: use case %q: %w", uc, apperr.ErrInvalidLabel)
	}
}

// Compose joins the submitted fields into the label text for uc.
func Compose(f Fields, uc models.UseCase) (string, error) {
	switch uc {
	case models.UseCaseOCR:
		return f.Text01, nil
	case models.UseCasePlate:
		return f.Text01 + f.Text02 + f.Text03, nil
	default:
		return "", fmt.Errorf("labeltext: use case %q: %w", uc, apperr.ErrInvalidLabel)
	}
}

// CheckLength rejects text longer than maxLen characters.
func CheckLength(text string, maxLen int) error {
	if n := utf8.RuneCountInString(text); n > maxLen {
		return fmt.Errorf("labeltext: %d characters, max %d: %w", n, maxLen, apperr.ErrLabelTooLong)
	}
	return nil
}

// OutputName builds "<index>_<text><ext>" for a labeled copy of source.
func OutputName(index int, text, source string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("labeltext: empty label: %w", apperr.ErrInvalidLabel)
	}
	if strings.ContainsAny(text, `/\`) || strings.Contains(text, "..") {
		return "", fmt.Errorf("labeltext: label %q contains path characters: %w", text, apperr.ErrInvalidLabel)
	}
	return fmt.Sprintf("%d_%s%s", index, text, filepath.Ext(source)), nil
}

// ParseOutputName reverses OutputName.
func ParseOutputName(name string) (index int, text string, ok bool) {
	m := outputRe.FindStringSubmatch(name)
	if m == nil {
		return 0, "", false
	}
	index, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return index, m[2], true
}
