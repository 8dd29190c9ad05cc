package intake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned by Probe for non-WAV uploads.
var ErrNotWAV = errors.New("not a wav file")

// AudioInfo is header metadata for a staged WAV file.
type AudioInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// Probe reads WAV header metadata. Callers treat failures as informational.
func (t *TempAudio) Probe() (AudioInfo, error) {
	if strings.ToLower(filepath.Ext(t.Path)) != ".wav" {
		return AudioInfo{}, ErrNotWAV
	}
	f, err := os.Open(t.Path)
	if err != nil {
		return AudioInfo{}, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return AudioInfo{}, fmt.Errorf("%w: invalid header", ErrNotWAV)
	}
	dec.ReadInfo()
	if err := dec.Err(); err != nil {
		return AudioInfo{}, fmt.Errorf("read wav info: %w", err)
	}
	dur, err := dec.Duration()
	if err != nil {
		return AudioInfo{}, fmt.Errorf("wav duration: %w", err)
	}
	info := AudioInfo{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
		Duration:   dur,
	}
	t.log.WithField("sample_rate", info.SampleRate).
		WithField("channels", info.Channels).
		WithField("duration", info.Duration.String()).
		Debug("wav probed")
	return info, nil
}
