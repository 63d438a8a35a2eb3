package processors

import (
	"fmt"
	"strings"
)

// DocumentProcessor organizes documents into Documents/<kind>/<year>.
type DocumentProcessor struct{}

// NewDocumentProcessor creates a document processor.
func NewDocumentProcessor() *DocumentProcessor { return &DocumentProcessor{} }

func (p *DocumentProcessor) Type() FileType { return TypeDocument }

func (p *DocumentProcessor) ExtractMetadata(path string) (Metadata, error) {
	taken, source := dateForFile(path)
	return Metadata{
		"date_taken":  taken,
		"date_source": source,
	}, nil
}

func (p *DocumentProcessor) Categorize(path string, meta Metadata) string {
	kind := documentKind(Extension(path))
	taken, ok := meta.DateTaken()
	if !ok {
		return fmt.Sprintf("Documents/%s", kind)
	}
	return fmt.Sprintf("Documents/%s/%d", kind, taken.Year())
}

func (p *DocumentProcessor) DestinationPath(path, root string, meta Metadata, category string) string {
	return joinDest(root, category, path)
}

func documentKind(ext string) string {
	switch strings.TrimPrefix(ext, ".") {
	case "pdf":
		return "PDF"
	case "doc", "docx", "odt", "rtf":
		return "Word"
	case "xls", "xlsx", "ods", "csv":
		return "Spreadsheets"
	case "ppt", "pptx", "odp":
		return "Presentations"
	case "txt", "md", "markdown":
		return "Text"
	default:
		return "Other"
	}
}
