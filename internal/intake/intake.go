// Package intake validates uploaded audio and stages it on disk for the
// transcriber.
package intake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"atc-insights-go/internal/logger"
)

var allowedExtensions = map[string]struct{}{
	".wav":  {},
	".mp3":  {},
	".m4a":  {},
	".flac": {},
	".ogg":  {},
}

var allowedContentTypes = map[string]struct{}{
	"audio/wav":  {},
	"audio/wave": {},
	"audio/mpeg": {},
	"audio/mp3":  {},
	"audio/mp4":  {},
	"audio/m4a":  {},
	"audio/flac": {},
	"audio/ogg":  {},
}

// ErrNoBody is returned by Materialize when there is nothing to stage.
var ErrNoBody = errors.New("upload has no body")

// Intake owns upload validation and temp file placement.
type Intake struct {
	dir string
	log *logger.Logger
}

// New returns an Intake writing temp files under dir (os.TempDir when empty).
func New(dir string, log *logger.Logger) *Intake {
	return &Intake{dir: dir, log: log.Component("intake")}
}

// Validate reports whether the upload looks like supported audio. The
// extension is matched case-insensitively; a non-empty content type must
// also be an accepted audio type.
func (in *Intake) Validate(filename, contentType string) bool {
	if filename == "" {
		in.log.Warn("audio file has no filename")
		return false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		in.log.WithField("extension", ext).Warn("invalid audio format")
		return false
	}
	if contentType != "" {
		if _, ok := allowedContentTypes[strings.ToLower(contentType)]; !ok {
			in.log.WithField("content_type", contentType).Warn("invalid content type")
			return false
		}
	}
	in.log.WithField("filename", filename).Info("audio file validated")
	return true
}

// TempAudio is an upload staged on disk for the lifetime of one request.
type TempAudio struct {
	Path string
	Size int64

	once sync.Once
	log  *logger.Logger
}

// Materialize copies body into a uniquely named temp file carrying the
// upload's extension. The file is removed again if the copy fails.
func (in *Intake) Materialize(body io.Reader, filename string) (*TempAudio, error) {
	if body == nil {
		return nil, ErrNoBody
	}
	ext := strings.ToLower(filepath.Ext(filename))
	f, err := os.CreateTemp(in.dir, "atc_upload_*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	n, copyErr := io.Copy(f, body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write temp file: %w", err)
	}

	in.log.WithField("path", f.Name()).WithField("bytes", n).Debug("upload staged")
	return &TempAudio{Path: f.Name(), Size: n, log: in.log}, nil
}

// Release deletes the temp file. Safe to call more than once.
func (t *TempAudio) Release() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		if err := os.Remove(t.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			t.log.WithError(err).WithField("path", t.Path).Warn("failed to remove temporary file")
			return
		}
		t.log.WithField("path", t.Path).Info("cleaned up temporary file")
	})
}

// FFmpegAvailable reports whether ffmpeg is on PATH and runs. Whisper
// backends need it to decode compressed formats.
func FFmpegAvailable(ctx context.Context, log *logger.Logger) bool {
	path, err := exec.LookPath("ffmpeg")
	if err == nil {
		err = exec.CommandContext(ctx, path, "-version").Run()
	}
	if err != nil {
		log.WithError(err).Warn("ffmpeg is not available")
		return false
	}
	log.Info("ffmpeg is available")
	return true
}
