package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// InferenceEngine runs the model on one preprocessed input tensor and
// returns the output logits.
type InferenceEngine interface {
	Infer(ctx context.Context, input []float32, shape []int64) ([]float32, error)
}

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

type tensor struct {
	Name     string    `json:"name"`
	Shape    []int64   `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float32 `json:"data"`
}

type inferRequest struct {
	Inputs []tensor `json:"inputs"`
}

type inferResponse struct {
	ModelName string   `json:"model_name"`
	Outputs   []tensor `json:"outputs"`
	Error     string   `json:"error"`
}

// KServeEngine calls a model server speaking the KServe v2 (Open Inference)
// REST protocol, e.g. Triton or MLServer.
type KServeEngine struct {
	BaseURL    string
	Model      string
	InputName  string
	OutputName string
	Doer       Doer
}

// NewKServeEngine creates an engine for model served at baseURL.
func NewKServeEngine(baseURL, model string, timeout time.Duration) *KServeEngine {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KServeEngine{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Model:      model,
		InputName:  "pixel_values",
		OutputName: "logits",
		Doer:       &http.Client{Timeout: timeout},
	}
}

// Infer implements InferenceEngine.
func (e *KServeEngine) Infer(ctx context.Context, input []float32, shape []int64) ([]float32, error) {
	body, err := json.Marshal(inferRequest{Inputs: []tensor{{
		Name:     e.InputName,
		Shape:    shape,
		Datatype: "FP32",
		Data:     input,
	}}})
	if err != nil {
		return nil, fmt.Errorf("failed to encode inference request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/models/%s/infer", e.BaseURL, e.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	doer := e.Doer
	if doer == nil {
		doer = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read inference response: %w", err)
	}

	var out inferResponse
	if err := json.Unmarshal(raw, &out); err != nil && resp.StatusCode == http.StatusOK {
		return nil, fmt.Errorf("failed to decode inference response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(raw))
		}
		return nil, fmt.Errorf("model server returned %d: %s", resp.StatusCode, msg)
	}

	for _, o := range out.Outputs {
		if e.OutputName == "" || o.Name == e.OutputName {
			return o.Data, nil
		}
	}
	if len(out.Outputs) == 1 {
		return out.Outputs[0].Data, nil
	}
	return nil, fmt.Errorf("model output %q not found", e.OutputName)
}
