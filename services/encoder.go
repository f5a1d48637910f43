package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ErrSourceMissing means the source audio file is absent. The pipeline
// checks the source before spawning an encoder; a missing source is never
// retried automatically.
var ErrSourceMissing = errors.New("source file missing")

// EncodingError reports a failed encode: a non-zero encoder exit or a
// process-spawn failure. ExitCode is -1 when the process never started.
type EncodingError struct {
	ExitCode int
	Detail   string
	Err      error
}

func (e *EncodingError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("encoding failed (exit %d): %s", e.ExitCode, e.Detail)
	}
	return fmt.Sprintf("encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// EncodingBackend converts one source file into one output file. Tests
// substitute a fake with controllable latency and failure.
type EncodingBackend interface {
	Encode(ctx context.Context, input, output string) error
}

// ffmpegBackend shells out to ffmpeg with fixed parameters: stereo, 44.1kHz,
// 128kbit/s constant bitrate MP3.
type ffmpegBackend struct {
	binPath string
}

// NewFFmpegBackend creates the production encoding backend. An empty binPath
// resolves ffmpeg from PATH; resolution failure surfaces on first Encode.
func NewFFmpegBackend(binPath string) EncodingBackend {
	if binPath == "" {
		if found, err := exec.LookPath("ffmpeg"); err == nil {
			binPath = found
		} else {
			binPath = "ffmpeg"
		}
	}
	return &ffmpegBackend{binPath: binPath}
}

// Encode runs ffmpeg and returns an *EncodingError on non-zero exit or spawn
// failure.
func (b *ffmpegBackend) Encode(ctx context.Context, input, output string) error {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", input,
		"-vn",
		"-ac", "2",
		"-ar", "44100",
		"-b:a", "128k",
		"-codec:a", "libmp3lame",
		"-f", "mp3",
		output,
	}

	cmd := exec.CommandContext(ctx, b.binPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &EncodingError{
				ExitCode: exitErr.ExitCode(),
				Detail:   strings.TrimSpace(stderr.String()),
				Err:      err,
			}
		}
		// Spawn error: ffmpeg missing or not executable.
		return &EncodingError{ExitCode: -1, Err: err}
	}

	return nil
}
