package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	agrisage "github.com/ZanzyTHEbar/agrisage-genkit"
	"github.com/ZanzyTHEbar/agrisage-genkit/internal/adapters"
)

const (
	// CapabilityName is the tool name shown to the model.
	CapabilityName = "crop_disease_classifier"

	description  = "Classifies crop leaf diseases from an uploaded image."
	argumentHint = "The image reference given in the request, e.g. '/uploads/<file>.jpg' or an http(s) URL."

	maxImageBytes = 20 << 20

	// UploadsRoute is the URL path under which uploaded images are served.
	UploadsRoute = "/uploads/"
)

// Labels maps class indices to names.
type Labels map[int]string

// LoadLabels reads id2label from a HuggingFace-style config.json.
func LoadLabels(path string) (Labels, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read label config: %w", err)
	}
	var cfg struct {
		ID2Label map[string]string `json:"id2label"`
	}
	if err := json.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode label config: %w", err)
	}
	if len(cfg.ID2Label) == 0 {
		return nil, fmt.Errorf("label config %s has no id2label table", path)
	}
	labels := make(Labels, len(cfg.ID2Label))
	for k, v := range cfg.ID2Label {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("invalid label id %q: %w", k, err)
		}
		labels[id] = v
	}
	return labels, nil
}

// Classifier loads an image reference and asks the engine for a label.
type Classifier struct {
	engine    InferenceEngine
	labels    Labels
	baseDir   string
	uploadDir string
	proc      ProcessorConfig
	doer      Doer
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithBaseDir sets the directory that served paths such as
// /uploads/x.jpg resolve against. Defaults to the working directory.
func WithBaseDir(dir string) Option {
	return func(c *Classifier) {
		c.baseDir = dir
	}
}

// WithUploadDir resolves references under UploadsRoute against dir instead
// of the base directory.
func WithUploadDir(dir string) Option {
	return func(c *Classifier) {
		c.uploadDir = dir
	}
}

// WithInputSize resizes inputs straight to size x size with ImageNet
// normalization.
func WithInputSize(size int) Option {
	return func(c *Classifier) {
		if size > 0 {
			c.proc = DefaultProcessorConfig(size)
		}
	}
}

// WithProcessorConfig sets resize, crop and normalization from a model's
// preprocessor config.
func WithProcessorConfig(cfg ProcessorConfig) Option {
	return func(c *Classifier) {
		c.proc = cfg
	}
}

// WithHTTPClient sets the client used to fetch remote images.
func WithHTTPClient(doer Doer) Option {
	return func(c *Classifier) {
		c.doer = doer
	}
}

// New creates a Classifier.
func New(engine InferenceEngine, labels Labels, opts ...Option) *Classifier {
	c := &Classifier{
		engine:  engine,
		labels:  labels,
		baseDir: ".",
		proc:    DefaultProcessorConfig(DefaultInputSize),
		doer:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Predict returns the predicted label for ref.
func (c *Classifier) Predict(ctx context.Context, ref string) (string, error) {
	if c.engine == nil {
		return "", fmt.Errorf("no inference engine configured")
	}
	data, err := c.load(ctx, strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	img, err := Decode(data)
	if err != nil {
		return "", err
	}

	if img.Bounds().Empty() {
		return "", fmt.Errorf("image has no pixels")
	}

	input, shape := Preprocess(img, c.proc)
	logits, err := c.engine.Infer(ctx, input, shape)
	if err != nil {
		return "", err
	}
	idx := Argmax(logits)
	if idx < 0 {
		return "", fmt.Errorf("model returned no logits")
	}
	label, ok := c.labels[idx]
	if !ok {
		return "", fmt.Errorf("class index %d has no label", idx)
	}
	return label, nil
}

// Classify returns "Detected disease: <label>" or an error text.
func (c *Classifier) Classify(ctx context.Context, ref string) string {
	label, err := c.Predict(ctx, ref)
	if err != nil {
		return fmt.Sprintf("Error in %s: %v", CapabilityName, err)
	}
	return "Detected disease: " + label
}

func (c *Classifier) load(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, fmt.Errorf("empty image reference")
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.doer.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch image: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	}

	path, err := c.localPath(ref)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// localPath resolves ref under the base directory, refusing anything that
// escapes it.
func (c *Classifier) localPath(ref string) (string, error) {
	dir, rel := c.baseDir, ref
	if c.uploadDir != "" && strings.HasPrefix(ref, UploadsRoute) {
		dir, rel = c.uploadDir, strings.TrimPrefix(ref, UploadsRoute)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(strings.TrimLeft(rel, "/")))
	if full != root && !strings.HasPrefix(full, root+string(filepath.Separator)) {
		return "", fmt.Errorf("image reference %q is outside the base directory", ref)
	}
	return full, nil
}

// Capability exposes the classifier as the crop_disease_classifier
// capability.
func (c *Classifier) Capability(opts ...adapters.CapabilityOption) *adapters.FuncCapability {
	opts = append([]adapters.CapabilityOption{
		adapters.WithDescription(description),
		adapters.WithArgumentHint(argumentHint),
		adapters.WithValidator(adapters.NotEmpty),
	}, opts...)
	return adapters.NewCapability(CapabilityName, agrisage.KindClassifier, func(ctx context.Context, argument string) (string, error) {
		label, err := c.Predict(ctx, argument)
		if err != nil {
			return "", err
		}
		return "Detected disease: " + label, nil
	}, opts...)
}
