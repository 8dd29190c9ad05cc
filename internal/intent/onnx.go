package intent

import (
	"context"
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"

	"atc-insights-go/internal/logger"
	"atc-insights-go/internal/types"
)

// OnnxConfig points at a BERT sequence classifier exported to ONNX whose
// id2label order matches types.IntentLabels.
type OnnxConfig struct {
	RuntimeLib    string
	ModelPath     string
	TokenizerPath string
	ModelID       string
	Device        string
	MaxTokens     int
}

// OnnxClassifier runs the intent model in-process. Calls are serialized.
type OnnxClassifier struct {
	cfg     OnnxConfig
	tk      *tokenizer.Tokenizer
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
	log     *logger.Logger
}

var (
	inputNames  = []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames = []string{"logits"}
)

// NewOnnxClassifier loads the tokenizer and model once at process start.
func NewOnnxClassifier(cfg OnnxConfig, log *logger.Logger) (*OnnxClassifier, error) {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	log = log.Component("intent-onnx")

	tk, err := pretrained.FromFile(cfg.TokenizerPath)
	if err != nil {
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}
	tk.WithTruncation(&tokenizer.TruncationParams{
		MaxLength: cfg.MaxTokens,
		Strategy:  tokenizer.LongestFirst,
	})

	if cfg.RuntimeLib != "" {
		ort.SetSharedLibraryPath(cfg.RuntimeLib)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("init onnxruntime: %w", err)
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if cfg.Device == "cuda" {
		if err := appendCUDA(opts); err != nil {
			log.WithError(err).Warn("cuda provider unavailable, falling back to cpu")
		}
	}

	log.WithField("model_id", cfg.ModelID).WithField("model_path", cfg.ModelPath).Info("loading intent model")
	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	log.Info("intent model loaded")

	return &OnnxClassifier{cfg: cfg, tk: tk, session: session, log: log}, nil
}

func appendCUDA(opts *ort.SessionOptions) error {
	cudaOpts, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return err
	}
	defer cudaOpts.Destroy()
	return opts.AppendExecutionProviderCUDA(cudaOpts)
}

func (c *OnnxClassifier) Classify(ctx context.Context, text string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	normalized := NormalizeText(text)
	c.log.WithField("preview", preview(normalized, 50)).Debug("classifying intents")

	enc, err := c.tk.EncodeSingle(normalized, true)
	if err != nil {
		return Result{}, fmt.Errorf("tokenize: %w", err)
	}
	seqLen := int64(len(enc.Ids))
	if seqLen == 0 {
		return Result{}, errors.New("tokenizer produced no tokens")
	}

	shape := ort.NewShape(1, seqLen)
	ids, err := ort.NewTensor(shape, toInt64(enc.Ids))
	if err != nil {
		return Result{}, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer ids.Destroy()
	mask, err := ort.NewTensor(shape, toInt64(enc.AttentionMask))
	if err != nil {
		return Result{}, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer mask.Destroy()
	typeIDs, err := ort.NewTensor(shape, toInt64(enc.TypeIds))
	if err != nil {
		return Result{}, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()
	logits, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(len(types.IntentLabels))))
	if err != nil {
		return Result{}, fmt.Errorf("logits tensor: %w", err)
	}
	defer logits.Destroy()

	c.mu.Lock()
	err = c.session.Run([]ort.Value{ids, mask, typeIDs}, []ort.Value{logits})
	c.mu.Unlock()
	if err != nil {
		return Result{}, fmt.Errorf("onnx run: %w", err)
	}

	raw := logits.GetData()
	values := make([]float64, len(raw))
	for i, v := range raw {
		values[i] = float64(v)
	}
	res, err := FromScores(Softmax(values))
	if err != nil {
		return Result{}, err
	}
	c.log.WithField("top_intent", res.TopIntent).
		WithField("score", fmt.Sprintf("%.3f", res.Intents[res.TopIntent])).
		Info("intent classified")
	return res, nil
}

// Close releases the ORT session.
func (c *OnnxClassifier) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		err := c.session.Destroy()
		c.session = nil
		return err
	}
	return nil
}

func toInt64(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
