package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Settings is one point-in-time view of the configuration.
type Settings struct {
	AutoTranscode      bool
	AutoTranscodeCount int
	LibraryPath        string
	CachePath          string
	FFmpegPath         string
	Port               int
	CORSOrigins        []string
}

// Clamp bounds for auto_transcode_count. Out-of-range values are clamped,
// never rejected.
const (
	MinAutoTranscodeCount = 1
	MaxAutoTranscodeCount = 20
)

// Store reads settings live from viper on every Snapshot call, so a toggle
// takes effect within one scheduling decision.
type Store struct {
	v *viper.Viper
}

// NewStore initializes viper with defaults, an optional config file and
// FERMATA_* environment overrides.
func NewStore(path string) (*Store, error) {
	v := viper.New()

	v.SetDefault("auto_transcode", true)
	v.SetDefault("auto_transcode_count", 5)
	v.SetDefault("library_path", defaultLibraryPath())
	v.SetDefault("cache_path", defaultCachePath())
	v.SetDefault("ffmpeg_path", "")
	v.SetDefault("port", 8080)
	v.SetDefault("cors_origins", "http://localhost:3000,http://localhost:5173")

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				return nil, err
			}
			// Missing file is fine; env vars and defaults still apply.
		} else {
			v.WatchConfig()
		}
	}

	v.SetEnvPrefix("FERMATA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return &Store{v: v}, nil
}

// Snapshot returns the current settings. Values are read fresh from viper;
// nothing is cached between calls.
func (s *Store) Snapshot() Settings {
	count := s.v.GetInt("auto_transcode_count")
	if count < MinAutoTranscodeCount {
		count = MinAutoTranscodeCount
	}
	if count > MaxAutoTranscodeCount {
		count = MaxAutoTranscodeCount
	}

	return Settings{
		AutoTranscode:      s.v.GetBool("auto_transcode"),
		AutoTranscodeCount: count,
		LibraryPath:        s.v.GetString("library_path"),
		CachePath:          s.v.GetString("cache_path"),
		FFmpegPath:         s.v.GetString("ffmpeg_path"),
		Port:               s.v.GetInt("port"),
		CORSOrigins:        strings.Split(s.v.GetString("cors_origins"), ","),
	}
}

// SetAutoTranscode updates the live auto-transcode toggle.
func (s *Store) SetAutoTranscode(enabled bool) {
	s.v.Set("auto_transcode", enabled)
}

// SetAutoTranscodeCount updates the per-trigger episode count.
func (s *Store) SetAutoTranscodeCount(count int) {
	s.v.Set("auto_transcode_count", count)
}

func defaultLibraryPath() string {
	if custom := os.Getenv("FERMATA_LIBRARY"); custom != "" {
		return custom
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "library")
	}
	return filepath.Join(homeDir, "Audiobooks")
}

func defaultCachePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "cache")
	}
	return filepath.Join(homeDir, ".fermata", "cache")
}
