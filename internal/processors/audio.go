package processors

import (
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"

	"github.com/mediasort/mediasort/internal/logger"
)

// AudioProcessor organizes music into Music/<artist>/<album> using embedded
// tags, falling back to Music/Unsorted when a file carries none.
type AudioProcessor struct{}

// NewAudioProcessor creates an audio processor.
func NewAudioProcessor() *AudioProcessor { return &AudioProcessor{} }

func (p *AudioProcessor) Type() FileType { return TypeAudio }

func (p *AudioProcessor) ExtractMetadata(path string) (Metadata, error) {
	meta := Metadata{}
	taken, source := dateForFile(path)
	meta["date_taken"] = taken
	meta["date_source"] = source

	f, err := os.Open(path)
	if err != nil {
		return meta, err
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		// Untagged audio is common; categorize from what we have.
		logger.Debug("no audio tags", "path", path, "error", err)
		return meta, nil
	}

	meta["title"] = m.Title()
	meta["artist"] = m.Artist()
	meta["album_artist"] = m.AlbumArtist()
	meta["album"] = m.Album()
	meta["genre"] = m.Genre()
	if year := m.Year(); year > 0 {
		meta["year"] = year
	}
	track, total := m.Track()
	meta["track"] = track
	meta["track_total"] = total
	meta["format"] = string(m.Format())

	return meta, nil
}

func (p *AudioProcessor) Categorize(path string, meta Metadata) string {
	artist := meta.String("album_artist")
	if artist == "" {
		artist = meta.String("artist")
	}
	album := meta.String("album")

	if artist == "" {
		return "Music/Unsorted"
	}
	if album == "" {
		return fmt.Sprintf("Music/%s", sanitizeComponent(artist))
	}
	return fmt.Sprintf("Music/%s/%s", sanitizeComponent(artist), sanitizeComponent(album))
}

func (p *AudioProcessor) DestinationPath(path, root string, meta Metadata, category string) string {
	return joinDest(root, category, path)
}

// sanitizeComponent strips characters that are unsafe in directory names.
func sanitizeComponent(s string) string {
	replacer := strings.NewReplacer(
		"/", "-", "\\", "-", ":", "-", "*", "", "?", "",
		"\"", "", "<", "", ">", "", "|", "",
	)
	out := strings.TrimSpace(replacer.Replace(s))
	if out == "" {
		return "Unknown"
	}
	return out
}
