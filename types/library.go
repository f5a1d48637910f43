package types

// Book represents one book directory in the library with its season/episode
// tree in natural order.
type Book struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Author  string   `json:"author,omitempty"`
	Path    string   `json:"path"`
	Seasons []Season `json:"seasons"`
}

// Season groups the episodes of one season subdirectory. Books without
// season subdirectories get a single implicit season.
type Season struct {
	ID       string    `json:"id"`
	Index    int       `json:"index"`
	Episodes []Episode `json:"episodes"`
}

// Episode is one audio file in the library.
type Episode struct {
	ID             string         `json:"id"`
	Index          int            `json:"index"`
	Filename       string         `json:"filename"`
	Path           string         `json:"path"`
	Size           int64          `json:"size"`
	Format         string         `json:"format"`
	NeedsTranscode bool           `json:"needsTranscode"`
	Metadata       *AudioMetadata `json:"metadata,omitempty"`
}

// AudioMetadata holds tag metadata extracted from an audio file.
type AudioMetadata struct {
	Title       string `json:"title,omitempty"`
	Artist      string `json:"artist,omitempty"`
	Album       string `json:"album,omitempty"`
	TrackNumber int    `json:"trackNumber,omitempty"`
}
