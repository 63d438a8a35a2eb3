// Package processors implements per-type file processing: metadata
// extraction, categorization and destination path synthesis. The pipeline
// treats these as pluggable capabilities selected by detected file type.
package processors

import (
	"fmt"
	"path/filepath"
	"time"
)

// Metadata is the opaque key/value result of metadata extraction. Well-known
// keys used by the pipeline persistence stage: "date_taken" (time.Time),
// "camera_make", "camera_model" (string).
type Metadata map[string]interface{}

// DateTaken returns the extracted capture date, if any.
func (m Metadata) DateTaken() (time.Time, bool) {
	v, ok := m["date_taken"].(time.Time)
	return v, ok
}

// String returns the string value for key, or "" when absent.
func (m Metadata) String(key string) string {
	v, _ := m[key].(string)
	return v
}

// Processor is the capability interface implemented once per file type.
type Processor interface {
	// Type returns the file type this processor handles.
	Type() FileType

	// ExtractMetadata reads whatever metadata the file carries. Extraction
	// failures degrade to an empty map, they do not fail the file.
	ExtractMetadata(path string) (Metadata, error)

	// Categorize maps a file and its metadata to a category string such as
	// "Photos/2024/2024-06".
	Categorize(path string, meta Metadata) string

	// DestinationPath builds the full destination path for the file under
	// root given its category.
	DestinationPath(path, root string, meta Metadata, category string) string
}

// Registry maps file types to their processors.
type Registry struct {
	processors map[FileType]Processor
}

// NewRegistry returns a registry populated with the standard four processors.
func NewRegistry() *Registry {
	r := &Registry{processors: make(map[FileType]Processor)}
	for _, p := range []Processor{
		NewImageProcessor(),
		NewVideoProcessor(),
		NewAudioProcessor(),
		NewDocumentProcessor(),
	} {
		r.Register(p)
	}
	return r
}

// Register adds or replaces the processor for its file type.
func (r *Registry) Register(p Processor) {
	r.processors[p.Type()] = p
}

// Get returns the processor for the given type.
func (r *Registry) Get(t FileType) (Processor, error) {
	p, ok := r.processors[t]
	if !ok {
		return nil, fmt.Errorf("no processor registered for type %q", t)
	}
	return p, nil
}

// joinDest is the shared destination layout: root/category/filename.
func joinDest(root, category, path string) string {
	return filepath.Join(root, filepath.FromSlash(category), filepath.Base(path))
}
