package decoder

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dhowden/tag"
)

// Metadata is the display information read from a file's tags.
type Metadata struct {
	Title  string
	Artist string
	Album  string
	Genre  string
}

// ReadMetadata reads ID3/Vorbis/MP4 tags from path. Missing or unreadable tags
// fall back to the file name as title.
func ReadMetadata(path string) Metadata {
	fallback := Metadata{Title: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}

	f, err := os.Open(path)
	if err != nil {
		return fallback
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return fallback
	}

	md := Metadata{
		Title:  strings.TrimSpace(m.Title()),
		Artist: strings.TrimSpace(m.Artist()),
		Album:  strings.TrimSpace(m.Album()),
		Genre:  strings.TrimSpace(m.Genre()),
	}
	if md.Title == "" {
		md.Title = fallback.Title
	}
	return md
}
