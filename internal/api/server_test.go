package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"

	"atc-insights-go/internal/efficiency"
	"atc-insights-go/internal/intake"
	"atc-insights-go/internal/intent"
	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/pipeline"
	"atc-insights-go/internal/transcription"
	"atc-insights-go/internal/types"
)

type fakeProcessor struct {
	process    func(ctx context.Context, up pipeline.Upload) (types.TranscriptionResponse, error)
	transcript func(ctx context.Context, text string) (types.TranscriptionResponse, error)
}

func (f *fakeProcessor) Process(ctx context.Context, up pipeline.Upload) (types.TranscriptionResponse, error) {
	return f.process(ctx, up)
}

func (f *fakeProcessor) ProcessTranscript(ctx context.Context, text string) (types.TranscriptionResponse, error) {
	return f.transcript(ctx, text)
}

func newTestServer(proc Processor, cfg Config) http.Handler {
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	return NewServer(proc, cfg, logger.Discard()).Handler()
}

func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write(data)
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return &b, w.FormDataContentType()
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestRootAndHealth(t *testing.T) {
	h := newTestServer(&fakeProcessor{}, Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("root status %d", rec.Code)
	}
	if got := decode[map[string]string](t, rec.Body); got["message"] != rootMessage {
		t.Fatalf("unexpected root body %v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if got := decode[map[string]string](t, rec.Body); got["status"] != "healthy" {
		t.Fatalf("unexpected health body %v", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown path, got %d", rec.Code)
	}
}

func TestTranscribePassesUpload(t *testing.T) {
	proc := &fakeProcessor{process: func(ctx context.Context, up pipeline.Upload) (types.TranscriptionResponse, error) {
		data, _ := io.ReadAll(up.Body)
		if up.Filename != "clip.wav" || up.ContentType != "audio/wav" || string(data) != "RIFF" {
			t.Errorf("unexpected upload %+v (%q)", up, data)
		}
		return types.TranscriptionResponse{Transcript: "roger", ProcessingTime: 0.12}, nil
	}}
	body, ct := multipartBody(t, "audio", "clip.wav", "audio/wav", []byte("RIFF"))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newTestServer(proc, Config{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[types.TranscriptionResponse](t, rec.Body)
	if got.Transcript != "roger" || got.ProcessingTime != 0.12 {
		t.Fatalf("unexpected response %+v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header")
	}
}

func TestTranscribeErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"validation", &pipeline.Error{Stage: pipeline.StageValidating, Kind: pipeline.ErrValidation, Err: pipeline.ErrInvalidAudio}, http.StatusBadRequest},
		{"transcription", &pipeline.Error{Stage: pipeline.StageTranscribing, Kind: pipeline.ErrTranscription, Err: errors.New("decoder failed")}, http.StatusInternalServerError},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			proc := &fakeProcessor{process: func(context.Context, pipeline.Upload) (types.TranscriptionResponse, error) {
				return types.TranscriptionResponse{}, tc.err
			}}
			body, ct := multipartBody(t, "audio", "clip.wav", "", []byte("x"))
			req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			newTestServer(proc, Config{}).ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			got := decode[types.ErrorResponse](t, rec.Body)
			if got.Detail != tc.err.Error() || got.Error == "" {
				t.Fatalf("unexpected error body %+v", got)
			}
		})
	}
}

func TestTranscribeMissingField(t *testing.T) {
	body, ct := multipartBody(t, "file", "clip.wav", "audio/wav", []byte("x"))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newTestServer(&fakeProcessor{}, Config{}).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestTranscribeTooLarge(t *testing.T) {
	body, ct := multipartBody(t, "audio", "clip.wav", "audio/wav", bytes.Repeat([]byte("a"), 4096))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	newTestServer(&fakeProcessor{}, Config{MaxUploadBytes: 1024}).ServeHTTP(rec, req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestScore(t *testing.T) {
	proc := &fakeProcessor{transcript: func(ctx context.Context, text string) (types.TranscriptionResponse, error) {
		if text == "" {
			return types.TranscriptionResponse{}, &pipeline.Error{Kind: pipeline.ErrValidation, Err: pipeline.ErrEmptyTranscript}
		}
		return types.TranscriptionResponse{Transcript: text}, nil
	}}
	h := newTestServer(proc, Config{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`{"transcript":"roger"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`{"transcript":""}`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty transcript, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`not json`)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad json, got %d", rec.Code)
	}
}

func TestCORS(t *testing.T) {
	h := newTestServer(&fakeProcessor{}, Config{})

	req := httptest.NewRequest(http.MethodOptions, "/transcribe", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("preflight status %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" ||
		rec.Header().Get("Access-Control-Allow-Credentials") != "true" ||
		rec.Header().Get("Access-Control-Allow-Headers") != "content-type" {
		t.Fatalf("unexpected preflight headers %v", rec.Header())
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("unlisted origin must not be allowed")
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" || rec.Code != http.StatusOK {
		t.Fatalf("expected listed origin on simple request, got %d %v", rec.Code, rec.Header())
	}
}

func TestCORSNoOriginsConfigured(t *testing.T) {
	h := newTestServer(&fakeProcessor{}, Config{AllowedOrigins: []string{}})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("no origins configured must not allow any, got %v", rec.Header())
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "atc_pipeline_requests_total 1\n")
	})
	h := newTestServer(&fakeProcessor{}, Config{MetricsHandler: metrics})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "atc_pipeline_requests_total") {
		t.Fatalf("metrics not served: %q", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	newTestServer(&fakeProcessor{}, Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without metrics handler, got %d", rec.Code)
	}
}

func TestHandlerPanicRecovered(t *testing.T) {
	proc := &fakeProcessor{transcript: func(context.Context, string) (types.TranscriptionResponse, error) {
		panic("unexpected")
	}}
	rec := httptest.NewRecorder()
	newTestServer(proc, Config{}).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/score", strings.NewReader(`{"transcript":"x"}`)))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}

// End to end through the real pipeline with offline backends.
func TestTranscribeEndToEnd(t *testing.T) {
	dir := t.TempDir()
	log := logger.Discard()
	p, err := pipeline.New(
		intake.New(dir, log),
		transcription.MockTranscriber{Text: "Delta one two three, cleared to land runway two seven"},
		intent.NewKeywordClassifier(0),
		efficiency.NewScorer(efficiency.DefaultThreshold, log),
		log,
	)
	if err != nil {
		t.Fatal(err)
	}
	h := newTestServer(p, Config{})

	body, ct := multipartBody(t, "audio", "clip.wav", "audio/wav", []byte("RIFF"))
	req := httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[types.TranscriptionResponse](t, rec.Body)
	if got.Intents.TopIntent != types.IntentClearance || len(got.Intents.Intents) != len(types.IntentLabels) {
		t.Fatalf("unexpected intents %+v", got.Intents)
	}
	if got.Efficiency.WordCount != 10 {
		t.Fatalf("unexpected word count %d", got.Efficiency.WordCount)
	}

	body, ct = multipartBody(t, "audio", "clip.txt", "text/plain", []byte("hello"))
	req = httptest.NewRequest(http.MethodPost, "/transcribe", body)
	req.Header.Set("Content-Type", ct)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for text upload, got %d", rec.Code)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("temp files leaked: %d", len(entries))
	}
}
