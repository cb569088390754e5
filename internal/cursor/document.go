// Package cursor owns the persisted progress document of a dataset directory:
// the current read position, the immutable image index map and the labeling
// configuration.
package cursor

import (
	"fmt"
	"path/filepath"

	"github.com/starford/ocrlabel/internal/models"
)

// Default labeling bounds written into a freshly created document.
const (
	DefaultMinLength = "10"
	DefaultMaxLength = "15"
)

// Overflow selects what SetIndex does with an index past the last image.
type Overflow string

const (
	// OverflowClamp falls back to the last index.
	OverflowClamp Overflow = "clamp"
	// OverflowWrap restarts at index 1.
	OverflowWrap Overflow = "wrap"
)

// Document is the on-disk cursor. Field order and JSON names are the file format.
type Document struct {
	FileIndexToRead int            `json:"file_index_to_read"`
	Images          map[int]string `json:"images"`
	DataDir         string         `json:"data_dir"`
	MinLength       string         `json:"min_length"`
	MaxLength       string         `json:"max_length"`
	UseCase         models.UseCase `json:"use_case"`
}

// newDocument builds a document indexing names 1..N in the given order.
func newDocument(dataDir string, names []string) Document {
	images := make(map[int]string, len(names))
	for i, name := range names {
		images[i+1] = name
	}
	return Document{
		FileIndexToRead: 1,
		Images:          images,
		DataDir:         dataDir,
		MinLength:       DefaultMinLength,
		MaxLength:       DefaultMaxLength,
		UseCase:         models.UseCaseOCR,
	}
}

// Clone returns a deep copy.
func (d Document) Clone() Document {
	out := d
	out.Images = make(map[int]string, len(d.Images))
	for k, v := range d.Images {
		out.Images[k] = v
	}
	return out
}

// PathFor derives the cursor file location for a dataset directory:
// <parent>/ocr-labeling-cursor-<basename>-cursor.json.
func PathFor(dataDir string) string {
	cleaned := filepath.Clean(dataDir)
	parent, name := filepath.Split(cleaned)
	return filepath.Join(parent, fmt.Sprintf("ocr-labeling-cursor-%s-cursor.json", name))
}

// bound applies the overflow policy to i for a map of n images.
func bound(i, n int, policy Overflow) int {
	if n == 0 {
		return 1
	}
	if i > n {
		if policy == OverflowWrap {
			return 1
		}
		return n
	}
	return i
}
