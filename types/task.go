package types

// EpisodeRef identifies one encoded artifact by its place in the library.
// Two tasks are the same task iff their refs are equal.
type EpisodeRef struct {
	BookID    string `json:"bookId"`
	SeasonID  string `json:"seasonId"`
	EpisodeID string `json:"episodeId"`
}

// String renders the ref as a stable "book/season/episode" key.
func (r EpisodeRef) String() string {
	return r.BookID + "/" + r.SeasonID + "/" + r.EpisodeID
}

// TranscodeTask is an immutable request to convert one source file into the
// cached artifact addressed by Ref. Identity is Ref, not SourcePath.
type TranscodeTask struct {
	SourcePath string     `json:"sourcePath"`
	Ref        EpisodeRef `json:"ref"`
}
