package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// confidencePrecision quantizes service confidences to three decimals.
const confidencePrecision = 3

// minConfidence filters out low-value detections at the service side.
const minConfidence = 50

type detectRequest struct {
	Image         string `json:"image"`
	MinConfidence int    `json:"min_confidence"`
}

type detectResponse struct {
	Labels []struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPClient talks to the label-detection service over HTTP.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient creates a vision client for the given detection endpoint.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPClient) SourceName() string {
	return "vision-api"
}

// DetectLabels submits image bytes for classification and returns detected
// labels with confidences quantized to three decimals.
func (c *HTTPClient) DetectLabels(ctx context.Context, imageData []byte) ([]Label, error) {
	reqBody := detectRequest{
		Image:         base64.StdEncoding.EncodeToString(imageData),
		MinConfidence: minConfidence,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "/v1/detect-labels"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call vision service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read vision response: %w", err)
	}

	var parsed detectResponse
	if resp.StatusCode != http.StatusOK {
		// The service reports an undecodable payload with 422 and a coded
		// error body; everything else is a generic upstream failure.
		if err := json.Unmarshal(body, &parsed); err == nil &&
			(resp.StatusCode == http.StatusUnprocessableEntity || parsed.Error.Code == "InvalidImageFormat") {
			return nil, fmt.Errorf("%w: %s", ErrUnrecognizedImage, parsed.Error.Message)
		}
		return nil, fmt.Errorf("vision service returned status %d: %s", resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse vision response: %w", err)
	}

	labels := make([]Label, 0, len(parsed.Labels))
	for _, l := range parsed.Labels {
		labels = append(labels, Label{
			Name:       l.Name,
			Confidence: decimal.NewFromFloat(l.Confidence).Round(confidencePrecision),
		})
	}
	return labels, nil
}
