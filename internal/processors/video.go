package processors

import (
	"fmt"
)

// VideoProcessor organizes videos into Videos/<year>.
type VideoProcessor struct{}

// NewVideoProcessor creates a video processor.
func NewVideoProcessor() *VideoProcessor { return &VideoProcessor{} }

func (p *VideoProcessor) Type() FileType { return TypeVideo }

func (p *VideoProcessor) ExtractMetadata(path string) (Metadata, error) {
	taken, source := dateForFile(path)
	return Metadata{
		"date_taken":  taken,
		"date_source": source,
	}, nil
}

func (p *VideoProcessor) Categorize(path string, meta Metadata) string {
	taken, ok := meta.DateTaken()
	if !ok {
		return "Videos/Unsorted"
	}
	return fmt.Sprintf("Videos/%d", taken.Year())
}

func (p *VideoProcessor) DestinationPath(path, root string, meta Metadata, category string) string {
	return joinDest(root, category, path)
}
