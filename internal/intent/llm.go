package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/types"
)

// LLMConfig configures the chat gateway backend.
type LLMConfig struct {
	GatewayURL   string
	APIKey       string
	Model        string
	MaxTokens    int
	HTTPTimeout  time.Duration
	MaxRetryTime time.Duration
}

// LLMClassifier asks an OpenAI-compatible chat gateway for a label distribution.
type LLMClassifier struct {
	cfg        LLMConfig
	httpClient *http.Client
	log        *logger.Logger
}

func NewLLMClassifier(cfg LLMConfig, log *logger.Logger) *LLMClassifier {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 25 * time.Second
	}
	if cfg.MaxRetryTime <= 0 {
		cfg.MaxRetryTime = 45 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &LLMClassifier{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		log:        log.Component("intent-llm"),
	}
}

type llmIntentPayload struct {
	Intents map[string]float64 `json:"intents"`
}

// BuildPrompt renders the classification prompt for one transcript.
func BuildPrompt(transcript string) string {
	prompt := `You are an air traffic control phraseology analyst.

Classify the communicative intent of the transmission below. Score EVERY label
with a probability between 0 and 1:
%s

Return ONLY JSON of the form {"intents": {"<label>": <probability>, ...}}.
DO NOT include commentary.
DO NOT wrap the JSON in backticks.

TRANSMISSION:
"""%s"""
`
	return fmt.Sprintf(prompt, strings.Join(types.IntentLabels, ", "), transcript)
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) (Result, error) {
	transcript := TruncateWords(NormalizeText(text), c.cfg.MaxTokens)
	reqBody := map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": BuildPrompt(transcript)},
		},
		"temperature": 0.0,
	}
	data, err := json.Marshal(reqBody)
	if err != nil {
		return Result{}, fmt.Errorf("encode llm request: %w", err)
	}

	var parsed llmIntentPayload
	var lastErr error

	op := func() error {
		reqCtx, cancel := context.WithTimeout(ctx, c.cfg.HTTPTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.GatewayURL, bytes.NewReader(data))
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			c.log.WithError(err).Warn("llm request failed")
			return err
		}
		defer resp.Body.Close()

		body, _ := io.ReadAll(resp.Body)
		c.log.WithField("http_status", resp.StatusCode).Debug("llm raw:\n" + string(body))

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("llm server error: status %d", resp.StatusCode)
			return lastErr
		}
		if resp.StatusCode >= 400 {
			lastErr = fmt.Errorf("llm client error: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			return backoff.Permanent(lastErr)
		}

		// Try choices[0].message.content (OpenAI-like), then the first
		// balanced JSON in the body. Each candidate decodes into a fresh value.
		for _, candidate := range []string{extractContentFromChoices(body), extractJSON(string(body))} {
			if candidate == "" {
				continue
			}
			var attempt llmIntentPayload
			if err := json.Unmarshal([]byte(candidate), &attempt); err == nil && len(attempt.Intents) > 0 {
				parsed = attempt
				lastErr = nil
				return nil
			}
		}
		lastErr = fmt.Errorf("no intent scores found in llm output")
		return lastErr
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = c.cfg.MaxRetryTime
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if lastErr == nil {
			lastErr = err
		}
		return Result{}, fmt.Errorf("llm classify failed: %w", lastErr)
	}

	res, err := c.toResult(parsed.Intents)
	if err != nil {
		return Result{}, err
	}
	c.log.WithField("top_intent", res.TopIntent).
		WithField("score", res.Intents[res.TopIntent]).
		Info("llm classification complete")
	return res, nil
}

// toResult projects the model output onto the closed label set. Unknown labels
// are dropped, missing ones scored 0 and values clamped to [0,1]. Output
// without a single known label is rejected.
func (c *LLMClassifier) toResult(raw map[string]float64) (Result, error) {
	scores := make([]float64, len(types.IntentLabels))
	known := 0
	for label, v := range raw {
		key := strings.ToLower(strings.TrimSpace(label))
		idx := labelIndex(key)
		if idx < 0 {
			c.log.WithField("label", label).Warn("dropping unknown label from llm output")
			continue
		}
		scores[idx] = clamp01(v)
		known++
	}
	if known == 0 {
		return Result{}, fmt.Errorf("%w: llm output has no known intent label", ErrLabelMismatch)
	}
	return FromScores(scores)
}

func labelIndex(label string) int {
	for i, l := range types.IntentLabels {
		if l == label {
			return i
		}
	}
	return -1
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// extractContentFromChoices attempts to read openai-style choices[0].message.content JSON
func extractContentFromChoices(body []byte) string {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return ""
	}

	choices, ok := obj["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	c0, _ := choices[0].(map[string]any)
	if c0 == nil {
		return ""
	}
	msg, _ := c0["message"].(map[string]any)
	if msg == nil {
		return ""
	}
	content, _ := msg["content"].(string)
	return extractJSON(content)
}

// extractJSON finds the first balanced JSON object in a string and returns it.
// It strips common markdown fences first.
func extractJSON(s string) string {
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, "\r\n", "\n")
	for _, r := range []string{"```json", "```text", "```", "`"} {
		s = strings.ReplaceAll(s, r, "")
	}

	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}

	depth := 0
	for i := start; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(s[start : i+1])
			}
		}
	}
	return ""
}
