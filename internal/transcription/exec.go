package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"

	"atc-insights-go/internal/logger"
)

// ExecConfig describes a local speech-to-text command. The audio path,
// model id and device are appended as --audio, --model and --device.
type ExecConfig struct {
	Command string
	ModelID string
	Device  string
	Timeout time.Duration
}

// ExecTranscriber shells out to a whisper CLI. One invocation at a time.
type ExecTranscriber struct {
	cmd []string
	cfg ExecConfig
	mu  sync.Mutex
	log *logger.Logger
}

type execResult struct {
	Text string `json:"text"`
}

func NewExecTranscriber(cfg ExecConfig, log *logger.Logger) (*ExecTranscriber, error) {
	parser := shellwords.NewParser()
	parser.ParseEnv = true
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse transcriber command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("transcriber command is empty")
	}
	return &ExecTranscriber{cmd: args, cfg: cfg, log: log.Component("transcription-exec")}, nil
}

func (t *ExecTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()
	}

	cmdArgs := append([]string{}, t.cmd[1:]...)
	cmdArgs = append(cmdArgs, "--audio", path)
	if t.cfg.ModelID != "" {
		cmdArgs = append(cmdArgs, "--model", t.cfg.ModelID)
	}
	if t.cfg.Device != "" {
		cmdArgs = append(cmdArgs, "--device", t.cfg.Device)
	}

	command := exec.CommandContext(ctx, t.cmd[0], cmdArgs...)
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	start := time.Now()
	if err := command.Run(); err != nil {
		return "", fmt.Errorf("transcriber command failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	text := parseExecOutput(stdout.Bytes())
	t.log.WithField("duration_ms", time.Since(start).Milliseconds()).
		WithField("chars", len(text)).
		Info("transcription complete")
	return text, nil
}

// parseExecOutput accepts either {"text": "..."} or plain text on stdout.
func parseExecOutput(out []byte) string {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var resp execResult
		if err := json.Unmarshal(trimmed, &resp); err == nil {
			return strings.TrimSpace(resp.Text)
		}
	}
	return string(trimmed)
}
