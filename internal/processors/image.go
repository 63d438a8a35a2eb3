package processors

import (
	"fmt"
	"os"
	"regexp"
	"time"
)

// filenameDate matches timestamps commonly embedded in camera and phone
// filenames, e.g. IMG_20240613_101500.jpg or 2024-06-13 10.15.00.png.
var filenameDate = regexp.MustCompile(`(20[0-3]\d|19\d\d)[-_.]?(0[1-9]|1[0-2])[-_.]?(0[1-9]|[12]\d|3[01])`)

// dateFromName extracts a date embedded in the file name, if present.
func dateFromName(path string) (time.Time, bool) {
	m := filenameDate.FindStringSubmatch(path)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// dateForFile resolves the best available date: filename first, then the
// file's modification time.
func dateForFile(path string) (time.Time, string) {
	if t, ok := dateFromName(path); ok {
		return t, "filename"
	}
	if info, err := os.Stat(path); err == nil {
		return info.ModTime(), "mtime"
	}
	return time.Now(), "none"
}

// ImageProcessor organizes photos into Photos/<year>/<year-month>.
type ImageProcessor struct{}

// NewImageProcessor creates an image processor.
func NewImageProcessor() *ImageProcessor { return &ImageProcessor{} }

func (p *ImageProcessor) Type() FileType { return TypeImage }

func (p *ImageProcessor) ExtractMetadata(path string) (Metadata, error) {
	taken, source := dateForFile(path)
	return Metadata{
		"date_taken":  taken,
		"date_source": source,
	}, nil
}

func (p *ImageProcessor) Categorize(path string, meta Metadata) string {
	taken, ok := meta.DateTaken()
	if !ok {
		return "Photos/Unsorted"
	}
	return fmt.Sprintf("Photos/%d/%s", taken.Year(), taken.Format("2006-01"))
}

func (p *ImageProcessor) DestinationPath(path, root string, meta Metadata, category string) string {
	return joinDest(root, category, path)
}
