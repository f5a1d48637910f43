package services

import (
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dhowden/tag"

	"fermata/config"
	"fermata/types"
)

// webFriendlyFormats are containers browsers play natively; everything else
// gets flagged for transcoding.
var webFriendlyFormats = map[string]bool{
	".mp3":  true,
	".aac":  true,
	".m4a":  true,
	".m4b":  true,
	".ogg":  true,
	".opus": true,
}

// audioExtensions are the file types the scanner picks up as episodes.
var audioExtensions = map[string]bool{
	".mp3": true, ".aac": true, ".m4a": true, ".m4b": true,
	".ogg": true, ".opus": true, ".flac": true, ".wav": true,
	".wma": true, ".aiff": true, ".ape": true,
}

// rootSeasonID is the implicit season for audio files placed directly in a
// book directory.
const rootSeasonID = "main"

// LibraryService provides the book/season/episode tree with needsTranscode
// flags and absolute source paths.
type LibraryService interface {
	ScanBooks() ([]types.Book, error)
	GetBook(id string) (types.Book, bool)
}

// libraryService scans the library directory on demand. The library path is
// re-read from config on every scan.
type libraryService struct {
	cfg *config.Store
}

// NewLibraryService creates a library service over the config store.
func NewLibraryService(cfg *config.Store) LibraryService {
	return &libraryService{cfg: cfg}
}

// ScanBooks walks the library root. Each top-level directory is a book; its
// subdirectories are seasons and its audio files are episodes, both in
// natural order.
func (s *libraryService) ScanBooks() ([]types.Book, error) {
	root := s.cfg.Snapshot().LibraryPath

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}

	var books []types.Book
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		book, err := s.scanBook(filepath.Join(root, entry.Name()), entry.Name())
		if err != nil {
			log.Printf("Error scanning book %s: %v", entry.Name(), err)
			continue
		}
		if len(book.Seasons) > 0 {
			books = append(books, book)
		}
	}

	sort.Slice(books, func(i, j int) bool { return naturalLess(books[i].ID, books[j].ID) })
	return books, nil
}

// GetBook returns one book by ID, rescanned fresh from disk.
func (s *libraryService) GetBook(id string) (types.Book, bool) {
	root := s.cfg.Snapshot().LibraryPath
	dir := filepath.Join(root, id)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return types.Book{}, false
	}

	book, err := s.scanBook(dir, id)
	if err != nil {
		log.Printf("Error scanning book %s: %v", id, err)
		return types.Book{}, false
	}
	return book, true
}

func (s *libraryService) scanBook(dir, id string) (types.Book, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return types.Book{}, err
	}

	var seasonDirs []string
	var rootFiles []string
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			seasonDirs = append(seasonDirs, entry.Name())
		} else if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			rootFiles = append(rootFiles, entry.Name())
		}
	}

	sort.Slice(seasonDirs, func(i, j int) bool { return naturalLess(seasonDirs[i], seasonDirs[j]) })

	book := types.Book{ID: id, Title: id, Path: dir}

	seasonIndex := 0
	if len(rootFiles) > 0 {
		season, err := s.scanSeason(dir, rootSeasonID, seasonIndex, rootFiles)
		if err != nil {
			return types.Book{}, err
		}
		book.Seasons = append(book.Seasons, season)
		seasonIndex++
	}

	for _, name := range seasonDirs {
		seasonPath := filepath.Join(dir, name)
		files, err := listAudioFiles(seasonPath)
		if err != nil {
			log.Printf("Error reading season %s/%s: %v", id, name, err)
			continue
		}
		if len(files) == 0 {
			continue
		}
		season, err := s.scanSeason(seasonPath, name, seasonIndex, files)
		if err != nil {
			return types.Book{}, err
		}
		book.Seasons = append(book.Seasons, season)
		seasonIndex++
	}

	// Book title and author come from the first episode's tags when present.
	if len(book.Seasons) > 0 && len(book.Seasons[0].Episodes) > 0 {
		if meta := book.Seasons[0].Episodes[0].Metadata; meta != nil {
			if meta.Album != "" {
				book.Title = meta.Album
			}
			book.Author = meta.Artist
		}
	}

	return book, nil
}

func (s *libraryService) scanSeason(dir, id string, index int, files []string) (types.Season, error) {
	sort.Slice(files, func(i, j int) bool { return naturalLess(files[i], files[j]) })

	season := types.Season{ID: id, Index: index}
	for i, name := range files {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			log.Printf("Error accessing episode %s: %v", path, err)
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		season.Episodes = append(season.Episodes, types.Episode{
			ID:             episodeID(name),
			Index:          i,
			Filename:       name,
			Path:           path,
			Size:           info.Size(),
			Format:         strings.TrimPrefix(ext, "."),
			NeedsTranscode: !webFriendlyFormats[ext],
			Metadata:       extractAudioMetadata(path),
		})
	}
	return season, nil
}

func listAudioFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// episodeID derives the stable episode identifier from its filename.
func episodeID(filename string) string {
	return strings.TrimSuffix(filename, filepath.Ext(filename))
}

// extractAudioMetadata reads tags from an audio file, falling back to
// path-derived metadata when the file can't be parsed.
func extractAudioMetadata(filePath string) *types.AudioMetadata {
	file, err := os.Open(filePath)
	if err != nil {
		log.Printf("Warning: Could not open audio file %s: %v", filePath, err)
		return extractMetadataFromPath(filePath)
	}
	defer file.Close()

	meta, err := tag.ReadFrom(file)
	if err != nil {
		return extractMetadataFromPath(filePath)
	}

	metadata := &types.AudioMetadata{
		Title:  meta.Title(),
		Artist: meta.Artist(),
		Album:  meta.Album(),
	}
	track, _ := meta.Track()
	metadata.TrackNumber = track

	// Fill missing fields from the path.
	if metadata.Title == "" || metadata.Artist == "" || metadata.Album == "" {
		fallback := extractMetadataFromPath(filePath)
		if metadata.Title == "" {
			metadata.Title = fallback.Title
		}
		if metadata.Artist == "" {
			metadata.Artist = fallback.Artist
		}
		if metadata.Album == "" {
			metadata.Album = fallback.Album
		}
	}

	return metadata
}

var trackPrefixRe = regexp.MustCompile(`^(\d+)[\.\-\s]+(.+)`)

// extractMetadataFromPath derives metadata from Book/Season/Episode.ext
// style paths.
func extractMetadataFromPath(filePath string) *types.AudioMetadata {
	metadata := &types.AudioMetadata{}

	parts := strings.Split(filepath.ToSlash(filePath), "/")
	filename := filepath.Base(filePath)

	if len(parts) >= 3 {
		metadata.Artist = parts[len(parts)-3]
	}
	if len(parts) >= 2 {
		metadata.Album = parts[len(parts)-2]
	}

	title := strings.TrimSuffix(filename, filepath.Ext(filename))
	if matches := trackPrefixRe.FindStringSubmatch(title); len(matches) > 2 {
		title = matches[2]
		if trackNum, err := strconv.Atoi(matches[1]); err == nil {
			metadata.TrackNumber = trackNum
		}
	}
	metadata.Title = title

	return metadata
}

// naturalLess orders strings with embedded numbers the way humans expect:
// "Episode 2" before "Episode 10".
func naturalLess(a, b string) bool {
	for len(a) > 0 && len(b) > 0 {
		if isDigit(a[0]) && isDigit(b[0]) {
			an, arest := leadingInt(a)
			bn, brest := leadingInt(b)
			if an != bn {
				return an < bn
			}
			a, b = arest, brest
			continue
		}
		if a[0] != b[0] {
			return a[0] < b[0]
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func leadingInt(s string) (int64, string) {
	i := 0
	var n int64
	for i < len(s) && isDigit(s[i]) && n < 1<<55 {
		n = n*10 + int64(s[i]-'0')
		i++
	}
	return n, s[i:]
}
