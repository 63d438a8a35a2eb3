package processors

import (
	"path/filepath"
	"strings"
)

// FileType classifies a file into one of the broad media categories.
type FileType string

const (
	TypeImage    FileType = "image"
	TypeVideo    FileType = "video"
	TypeAudio    FileType = "audio"
	TypeDocument FileType = "document"
	TypeUnknown  FileType = "unknown"
)

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".tiff": true, ".tif": true, ".webp": true,
	".heic": true, ".heif": true, ".avif": true, ".jxl": true,
	// RAW formats
	".cr2": true, ".cr3": true, ".nef": true, ".arw": true, ".dng": true,
	".raf": true, ".orf": true, ".rw2": true, ".pef": true, ".srw": true,
}

var videoExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".wmv": true,
	".flv": true, ".webm": true, ".m4v": true, ".mpg": true, ".mpeg": true,
	".3gp": true, ".3g2": true, ".mts": true, ".m2ts": true,
}

var audioExtensions = map[string]bool{
	".mp3": true, ".wav": true, ".flac": true, ".m4a": true, ".aac": true,
	".ogg": true, ".opus": true, ".wma": true, ".amr": true, ".aiff": true,
	".ape": true,
}

var documentExtensions = map[string]bool{
	".pdf": true, ".txt": true, ".rtf": true, ".md": true, ".markdown": true,
	".doc": true, ".docx": true, ".odt": true,
	".xls": true, ".xlsx": true, ".ods": true, ".csv": true,
	".ppt": true, ".pptx": true, ".odp": true,
}

// Extension returns the lowercased extension of path, including the dot.
func Extension(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// DetectType classifies a file by its extension. Files outside the known
// tables are TypeUnknown and are skipped by the pipeline, never errored.
func DetectType(path string) FileType {
	ext := Extension(path)
	switch {
	case imageExtensions[ext]:
		return TypeImage
	case videoExtensions[ext]:
		return TypeVideo
	case audioExtensions[ext]:
		return TypeAudio
	case documentExtensions[ext]:
		return TypeDocument
	default:
		return TypeUnknown
	}
}

// IsSupported reports whether the file maps to a known media type.
func IsSupported(path string) bool {
	return DetectType(path) != TypeUnknown
}
