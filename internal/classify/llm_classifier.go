package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"strconv"
	"sync"
	"time"

	"vigil/internal/session"
)

// LLMClassifier submits frame windows to an external vision-LLM
// analysis service over HTTP. The service is shared read-only across
// sessions; every invocation is independent and stateless.
type LLMClassifier struct {
	endpoint string
	model    string
	client   *http.Client

	healthMu    sync.Mutex
	healthy     bool
	healthCheck time.Time
}

// LLMClassifierConfig holds configuration for the classifier adapter
type LLMClassifierConfig struct {
	Endpoint string        // Base URL of the analysis service
	Model    string        // Model identifier forwarded to the service
	Timeout  time.Duration // Transport-level timeout; callers also bound each call via ctx
}

// verdictResponse is the analysis service's wire format
type verdictResponse struct {
	Detected        bool    `json:"detected"`
	Confidence      float64 `json:"confidence"`
	Description     string  `json:"description"`
	Model           string  `json:"model"`
	InferenceTimeMs float64 `json:"inference_time_ms"`
}

// NewLLMClassifier creates a classifier adapter for the given service
func NewLLMClassifier(config LLMClassifierConfig) *LLMClassifier {
	timeout := config.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second // Generous; per-call deadlines come from ctx
	}
	return &LLMClassifier{
		endpoint: config.Endpoint,
		model:    config.Model,
		client:   &http.Client{Timeout: timeout},
	}
}

// IsHealthy checks if the analysis service is available.
// Positive results are cached for 30 seconds.
func (c *LLMClassifier) IsHealthy() bool {
	c.healthMu.Lock()
	if c.healthy && time.Since(c.healthCheck) < 30*time.Second {
		c.healthMu.Unlock()
		return true
	}
	c.healthMu.Unlock()

	resp, err := c.client.Get(c.endpoint + "/health")
	if err != nil {
		c.setHealthy(false)
		return false
	}
	defer resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	c.setHealthy(ok)
	return ok
}

func (c *LLMClassifier) setHealthy(ok bool) {
	c.healthMu.Lock()
	c.healthy = ok
	c.healthCheck = time.Now()
	c.healthMu.Unlock()
}

// Classify uploads the frame window and prompt as multipart form data
// and decodes the service's verdict
func (c *LLMClassifier) Classify(ctx context.Context, frames []session.Frame, prompt string) (*session.Verdict, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("empty frame window")
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	w.WriteField("prompt", prompt)
	if c.model != "" {
		w.WriteField("model", c.model)
	}
	w.WriteField("frame_count", strconv.Itoa(len(frames)))

	for i, frame := range frames {
		fw, err := w.CreateFormFile("frames", fmt.Sprintf("frame_%03d.jpg", i))
		if err != nil {
			return nil, err
		}
		fw.Write(frame.Image)
		w.WriteField("timestamps", strconv.FormatFloat(frame.Timestamp, 'f', -1, 64))
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/v1/classify", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		c.setHealthy(false)
		return nil, fmt.Errorf("classification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("classification service returned %d: %s", resp.StatusCode, string(body))
	}

	var result verdictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed verdict: %w", err)
	}
	if result.Confidence < 0 || result.Confidence > 1 {
		return nil, fmt.Errorf("malformed verdict: confidence %v out of range", result.Confidence)
	}

	if result.Detected {
		log.Printf("[Classifier] Detection (confidence %.2f, %.0fms): %s",
			result.Confidence, result.InferenceTimeMs, result.Description)
	}

	return &session.Verdict{
		Detected:    result.Detected,
		Confidence:  result.Confidence,
		Description: result.Description,
	}, nil
}

// Ensure LLMClassifier implements the session's classifier capability
var _ session.Classifier = (*LLMClassifier)(nil)
