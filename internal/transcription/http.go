package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"atc-insights-go/internal/logger"
)

// HTTPConfig points at a remote transcription service exposing
// POST /transcribe and GET /getstatus.
type HTTPConfig struct {
	BaseURL      string
	PollInterval time.Duration
	MaxWaitTime  time.Duration
	RetryTime    time.Duration
	HTTPTimeout  time.Duration
}

// HTTPTranscriber uploads the file, polls until the job is done and
// downloads the transcript text.
type HTTPTranscriber struct {
	cfg        HTTPConfig
	httpClient *http.Client
	log        *logger.Logger
}

type PublishResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		MediaID          string `json:"MediaId"`
		Status           string `json:"Status"`
		TranscriptionURL string `json:"TranscriptionURL"`
		WordsCount       int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

type StatusResponse struct {
	Code   int    `json:"Code"`
	Status string `json:"Status"`
	Data   struct {
		Status               string `json:"Status"` // Success, Queued, Processing, Failed
		TranscriptionTextURL string `json:"TranscriptionTextURL"`
		WordsCount           int    `json:"WordsCount"`
	} `json:"Data"`
	Reason string `json:"Reason,omitempty"`
}

var errJobFailed = errors.New("remote transcription failed")

func NewHTTPTranscriber(cfg HTTPConfig, log *logger.Logger) *HTTPTranscriber {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 1500 * time.Millisecond
	}
	if cfg.MaxWaitTime <= 0 {
		cfg.MaxWaitTime = 60 * time.Second
	}
	if cfg.RetryTime <= 0 {
		cfg.RetryTime = 12 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 12 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPTranscriber{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log.Component("transcription-http"),
	}
}

func (t *HTTPTranscriber) Transcribe(ctx context.Context, path string) (string, error) {
	log := t.log.WithField("audio", filepath.Base(path))
	log.Info("starting transcription")

	mediaID, existingURL, err := t.publish(ctx, path)
	if err != nil {
		return "", err
	}
	if existingURL != "" {
		log.WithField("existing_url", existingURL).Info("transcription already available")
		return t.download(ctx, existingURL)
	}

	finalURL, err := t.poll(ctx, mediaID, log)
	if err != nil {
		return "", err
	}
	log.WithField("final_url", finalURL).Info("transcription completed, downloading text")
	return t.download(ctx, finalURL)
}

func (t *HTTPTranscriber) publish(ctx context.Context, path string) (string, string, error) {
	audio, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read audio: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	part, err := w.CreateFormFile("audio", filepath.Base(path))
	if err != nil {
		return "", "", err
	}
	if _, err := part.Write(audio); err != nil {
		return "", "", err
	}
	if err := w.Close(); err != nil {
		return "", "", err
	}
	payload := b.Bytes()
	contentType := w.FormDataContentType()

	var resp PublishResponse
	err = t.doJSON(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/transcribe", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, &resp)
	if err != nil {
		return "", "", fmt.Errorf("transcribe publish: %w", err)
	}
	if resp.Code != http.StatusOK {
		return "", "", fmt.Errorf("transcribe publish error: code=%d reason=%s", resp.Code, resp.Reason)
	}
	if resp.Data.TranscriptionURL != "" && strings.EqualFold(strings.TrimSpace(resp.Data.Status), "success") {
		return "", resp.Data.TranscriptionURL, nil
	}
	if resp.Data.MediaID == "" {
		return "", "", errors.New("transcribe publish returned no media id")
	}
	return resp.Data.MediaID, "", nil
}

func (t *HTTPTranscriber) poll(ctx context.Context, mediaID string, log *logrus.Entry) (string, error) {
	u, err := url.Parse(t.cfg.BaseURL + "/getstatus")
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("mediaId", mediaID)
	u.RawQuery = q.Encode()
	statusURL := u.String()

	deadline := time.Now().Add(t.cfg.MaxWaitTime)
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}

		var s StatusResponse
		err := t.doJSON(ctx, func() (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		}, &s)
		if err != nil {
			log.WithError(err).Warn("polling failed")
		} else {
			log.WithFields(logrus.Fields{
				"media_id": mediaID,
				"status":   s.Data.Status,
			}).Debug("polling transcription")

			switch s.Data.Status {
			case "Success":
				return s.Data.TranscriptionTextURL, nil
			case "Failed":
				return "", fmt.Errorf("%w: %s", errJobFailed, s.Reason)
			}
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("timeout: transcription did not complete within %s", t.cfg.MaxWaitTime)
		}
	}
}

func (t *HTTPTranscriber) download(ctx context.Context, textURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, textURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download transcript: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("failed to download transcript: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return strings.TrimSpace(string(body)), nil
}

// doJSON sends the request built by newReq with retries on transport and 5xx
// errors; 4xx responses are not retried.
func (t *HTTPTranscriber) doJSON(ctx context.Context, newReq func() (*http.Request, error), target any) error {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = t.cfg.RetryTime

	var lastErr error
	op := func() error {
		req, err := newReq()
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		resp, err := t.httpClient.Do(req)
		if err != nil {
			lastErr = err
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("client error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return backoff.Permanent(lastErr)
		}
		if len(body) == 0 {
			lastErr = errors.New("empty body")
			return lastErr
		}
		if err := json.Unmarshal(body, target); err != nil {
			lastErr = fmt.Errorf("json decode error: %v body=%s", err, string(body))
			return lastErr
		}
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return lastErr
	}
	return nil
}
