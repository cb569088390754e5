// Package storage defines the flat-directory file abstraction used for the
// dataset and labeled directories.
package storage

// Provider is the interface for directory-rooted file operations.
// Names are relative to the provider root.
type Provider interface {
	// Root returns the absolute directory the provider is confined to.
	Root() string
	// ListImages returns the names of regular image files directly under root, in listing order.
	ListImages() ([]string, error)
	// List returns the names of all regular files directly under root.
	List() ([]string, error)
	// Exists reports whether name is present under root.
	Exists(name string) bool
	// Path resolves name to an absolute path under root.
	Path(name string) (string, error)
	// Read returns the raw bytes of name.
	Read(name string) ([]byte, error)
	// Write atomically writes content to name.
	Write(name string, content []byte) error
}
