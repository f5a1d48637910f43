package services

import (
	"os"
	"path/filepath"
	"strings"

	"fermata/types"
)

// MinValidArtifactSize is the minimum byte size of a usable artifact. ffmpeg
// writes a container header even when encoding produces no audio, so tiny
// files are treated as absent.
const MinValidArtifactSize = 1024

// artifactExt is the extension of every cached artifact. Encodes target MP3
// (stereo, 44.1kHz, 128k CBR), the universally streamable format.
const artifactExt = ".mp3"

// tempSuffix marks in-progress encoder output. Temp files are never exposed
// to readers; they are renamed into place on success.
const tempSuffix = ".part"

// CacheStore maps an episode ref to its on-disk encoded artifact. It does
// not delete invalid files itself; callers do that before re-encoding.
type CacheStore struct {
	root string
}

// NewCacheStore creates a cache store rooted at the given directory.
func NewCacheStore(root string) *CacheStore {
	return &CacheStore{root: root}
}

// Path returns the deterministic artifact path for a ref. No lookup table;
// the path is derived purely from the triple.
func (cs *CacheStore) Path(ref types.EpisodeRef) string {
	return filepath.Join(cs.root, sanitizeComponent(ref.BookID), sanitizeComponent(ref.SeasonID),
		sanitizeComponent(ref.EpisodeID)+artifactExt)
}

// TempPath returns the temporary write path paired with Path.
func (cs *CacheStore) TempPath(ref types.EpisodeRef) string {
	return cs.Path(ref) + tempSuffix
}

// IsValid reports whether a usable artifact exists for the ref.
func (cs *CacheStore) IsValid(ref types.EpisodeRef) bool {
	info, err := os.Stat(cs.Path(ref))
	if err != nil {
		return false
	}
	return info.Size() > MinValidArtifactSize
}

// Root returns the cache root directory.
func (cs *CacheStore) Root() string {
	return cs.root
}

// sanitizeComponent keeps ref components from escaping the cache tree.
func sanitizeComponent(s string) string {
	s = strings.ReplaceAll(s, string(os.PathSeparator), "_")
	s = strings.ReplaceAll(s, "/", "_")
	s = strings.ReplaceAll(s, "..", "_")
	if s == "" {
		return "_"
	}
	return s
}
