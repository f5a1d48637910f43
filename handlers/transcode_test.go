package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fermata/types"
)

func TestTriggerBookQueuesPendingEpisodes(t *testing.T) {
	env := newTestEnv(t)
	env.addLibraryFile(t, "Dune/01.flac", "raw audio")
	env.addLibraryFile(t, "Dune/02.flac", "raw audio")
	env.addLibraryFile(t, "Dune/03.mp3", "already fine")

	w := env.postJSON(t, "/api/transcode/book/Dune", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Accepted int `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)

	env.scheduler.WaitIdle()
	assert.True(t, env.cache.IsValid(types.EpisodeRef{BookID: "Dune", SeasonID: "main", EpisodeID: "01"}))
	assert.True(t, env.cache.IsValid(types.EpisodeRef{BookID: "Dune", SeasonID: "main", EpisodeID: "02"}))
	assert.Equal(t, 2, env.backend.callCount())
}

func TestTriggerBookUnknownBook(t *testing.T) {
	env := newTestEnv(t)

	w := env.postJSON(t, "/api/transcode/book/Nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerBookIdempotentOnceCached(t *testing.T) {
	env := newTestEnv(t)
	env.addLibraryFile(t, "Dune/01.flac", "raw audio")

	w := env.postJSON(t, "/api/transcode/book/Dune", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	env.scheduler.WaitIdle()

	w = env.postJSON(t, "/api/transcode/book/Dune", "")
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Accepted int `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Accepted)
	assert.Equal(t, 1, env.backend.callCount())
}

func TestTriggerPositionQueuesFollowingEpisodes(t *testing.T) {
	env := newTestEnv(t)
	env.addLibraryFile(t, "Dune/Part 1/01.flac", "raw audio")
	env.addLibraryFile(t, "Dune/Part 1/02.flac", "raw audio")
	env.addLibraryFile(t, "Dune/Part 1/03.flac", "raw audio")

	w := env.postJSON(t, "/api/transcode/position",
		`{"bookId":"Dune","seasonIndex":0,"episodeIndex":0}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		Accepted int `json:"accepted"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Accepted)

	env.scheduler.WaitIdle()
	// Only the episodes after the playback position were converted.
	assert.False(t, env.cache.IsValid(types.EpisodeRef{BookID: "Dune", SeasonID: "Part 1", EpisodeID: "01"}))
	assert.True(t, env.cache.IsValid(types.EpisodeRef{BookID: "Dune", SeasonID: "Part 1", EpisodeID: "02"}))
	assert.True(t, env.cache.IsValid(types.EpisodeRef{BookID: "Dune", SeasonID: "Part 1", EpisodeID: "03"}))
}

func TestTriggerPositionValidation(t *testing.T) {
	env := newTestEnv(t)
	env.addLibraryFile(t, "Dune/01.flac", "raw audio")

	// Missing bookId.
	w := env.postJSON(t, "/api/transcode/position", `{"seasonIndex":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Malformed JSON.
	w = env.postJSON(t, "/api/transcode/position", `{`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Unknown book.
	w = env.postJSON(t, "/api/transcode/position", `{"bookId":"Nope"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Season index out of range.
	w = env.postJSON(t, "/api/transcode/position", `{"bookId":"Dune","seasonIndex":5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTranscodeStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.get(t, "/api/transcode/status")
	require.Equal(t, http.StatusOK, w.Code)

	var status types.SchedulerStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, 0, status.QueueLength)
	assert.Equal(t, 0, status.ActiveWorkers)
	assert.Equal(t, 2, status.Ceiling)
	assert.Equal(t, 4, status.CoreCount)
	assert.InDelta(t, 0.85, status.Threshold, 0.001)
}

func TestCancelEndpointWhenIdle(t *testing.T) {
	env := newTestEnv(t)

	w := env.delete(t, "/api/transcode")
	require.Equal(t, http.StatusOK, w.Code)

	var result types.CancelResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.False(t, result.Cancelled)
	assert.Equal(t, 0, result.DroppedTasks)
}
