package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"fermata/config"
	"fermata/services"
)

// stubBackend writes a fixed-size artifact instead of invoking ffmpeg.
type stubBackend struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (b *stubBackend) Encode(ctx context.Context, input, output string) error {
	b.mu.Lock()
	b.calls++
	fail := b.fail
	b.mu.Unlock()

	if fail {
		return &services.EncodingError{ExitCode: 1, Detail: "unsupported codec"}
	}
	return os.WriteFile(output, bytes.Repeat([]byte("a"), 2*services.MinValidArtifactSize), 0644)
}

func (b *stubBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// stubMonitor reports a permanently idle host.
type stubMonitor struct{}

func (stubMonitor) CPUUtilization() float64  { return 0.10 }
func (stubMonitor) MemUtilization() float64  { return 0.20 }
func (stubMonitor) IsOverloaded() bool       { return false }
func (stubMonitor) Threshold() float64       { return services.OverloadThreshold }
func (stubMonitor) TotalMemoryBytes() uint64 { return 8 << 30 }

// testEnv is a fully wired router over temp directories.
type testEnv struct {
	router     *gin.Engine
	cfg        *config.Store
	scheduler  *services.Scheduler
	cache      *services.CacheStore
	backend    *stubBackend
	libraryDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	libraryDir := t.TempDir()
	cacheDir := t.TempDir()
	t.Setenv("FERMATA_LIBRARY_PATH", libraryDir)
	t.Setenv("FERMATA_CACHE_PATH", cacheDir)

	cfg, err := config.NewStore("")
	require.NoError(t, err)

	backend := &stubBackend{}
	cache := services.NewCacheStore(cacheDir)
	pipeline := services.NewEncodingPipeline(cache, backend)
	queue := services.NewTaskQueue()
	library := services.NewLibraryService(cfg)
	scheduler := services.NewScheduler(queue, pipeline, cache, stubMonitor{}, cfg,
		services.WithCoreCount(4))

	transcodeHandler := NewTranscodeHandler(scheduler, library)
	libraryHandler := NewLibraryHandler(library)
	fileHandler := NewFileHandler(cfg, pipeline)
	healthHandler := NewHealthHandler(cfg)
	settingsHandler := NewSettingsHandler(cfg)

	router := gin.New()
	router.GET("/health", healthHandler.HealthCheck)
	api := router.Group("/api")
	{
		api.GET("/status", healthHandler.APIStatus)
		api.GET("/library", libraryHandler.ListBooks)
		api.GET("/library/:bookId", libraryHandler.GetBook)
		api.POST("/transcode/book/:bookId", transcodeHandler.TriggerBook)
		api.POST("/transcode/position", transcodeHandler.TriggerPosition)
		api.GET("/transcode/status", transcodeHandler.Status)
		api.DELETE("/transcode", transcodeHandler.Cancel)
		api.GET("/files/stream/*filepath", fileHandler.StreamFile)
		api.GET("/settings", settingsHandler.GetSettings)
		api.POST("/settings", settingsHandler.UpdateSettings)
	}

	return &testEnv{
		router:     router,
		cfg:        cfg,
		scheduler:  scheduler,
		cache:      cache,
		backend:    backend,
		libraryDir: libraryDir,
	}
}

// addLibraryFile creates a library file with the given content.
func (e *testEnv) addLibraryFile(t *testing.T, relPath, content string) {
	t.Helper()
	path := filepath.Join(e.libraryDir, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	return e.do(req)
}

func (e *testEnv) postJSON(t *testing.T, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func (e *testEnv) delete(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, path, nil)
	require.NoError(t, err)
	return e.do(req)
}
