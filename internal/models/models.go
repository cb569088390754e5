// Package models defines the domain types shared by the labeling layers.
package models

import "time"

// UseCase selects the label-field layout presented to the labeler.
type UseCase string

const (
	UseCaseOCR   UseCase = "ocr"
	UseCasePlate UseCase = "plate"
)

// Valid reports whether u is one of the known layouts.
func (u UseCase) Valid() bool {
	return u == UseCaseOCR || u == UseCasePlate
}

// Image is one entry of the cursor's index map.
type Image struct {
	Index    int    `json:"index"`
	Filename string `json:"filename"`
}

// Label is a saved annotation as recorded in the ledger.
type Label struct {
	ID         int64     `json:"id"`
	Dataset    string    `json:"dataset"`
	ImageIndex int       `json:"image_index"`
	Source     string    `json:"source"`
	Output     string    `json:"output"`
	Text       string    `json:"text"`
	UseCase    UseCase   `json:"use_case"`
	Checksum   string    `json:"checksum"`
	CreatedAt  time.Time `json:"created_at"`
}

// Progress summarises the labeling session for status endpoints.
type Progress struct {
	Index     int     `json:"index"`
	Total     int     `json:"total"`
	Labeled   int     `json:"labeled"`
	UseCase   UseCase `json:"use_case"`
	MinLength string  `json:"min_length"`
	MaxLength string  `json:"max_length"`
	Selector  string  `json:"selector"`
	DataDir   string  `json:"data_dir"`
}
