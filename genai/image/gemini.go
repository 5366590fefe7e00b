package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/openfoundry/forge3d/config"
	"github.com/openfoundry/forge3d/types"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// Client generates product images through the Gemini generateContent API.
type Client struct {
	cfg     config.GeminiConfig
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient creates a Gemini image client. A missing API key is a
// configuration error and fails here, not at first use.
func NewClient(cfg config.GeminiConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrNotConfigured, "gemini API key not set").
			WithProvider("gemini").
			WithHTTPStatus(http.StatusServiceUnavailable)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &Client{
		cfg:     cfg,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With(zap.String("component", "gemini_image")),
	}, nil
}

type geminiPart struct {
	Text       string        `json:"text,omitempty"`
	InlineData *geminiInline `json:"inlineData,omitempty"`
}

type geminiInline struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
	Role  string       `json:"role,omitempty"`
}

type geminiGenConfig struct {
	ResponseModalities []string              `json:"responseModalities,omitempty"`
	ThinkingConfig     *geminiThinkingConfig `json:"thinkingConfig,omitempty"`
	ImageConfig        *geminiImageConfig    `json:"imageConfig,omitempty"`
}

type geminiThinkingConfig struct {
	ThinkingLevel string `json:"thinkingLevel"`
}

type geminiImageConfig struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	ImageSize   string `json:"imageSize,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig *geminiGenConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// GenerateProductImages generates up to req.Count product views.
//
// Create workflow: the first view is generated from the prompt alone and then
// serves as the reference for the remaining angles. Edit workflow: every view
// conditions on the caller's reference images. A failed view is logged and
// skipped, so the result may be shorter than requested; total failure yields
// an empty slice, not an error.
func (c *Client) GenerateProductImages(ctx context.Context, req ProductImageRequest) ([]string, error) {
	var model, thinking string
	switch req.Workflow {
	case WorkflowCreate:
		model = c.cfg.ProModel
		thinking = c.cfg.ThinkingLevel
	case WorkflowEdit:
		model = c.cfg.FlashModel
	default:
		return nil, types.NewError(types.ErrInvalidRequest,
			fmt.Sprintf("unknown workflow %q, expected create or edit", req.Workflow))
	}

	count := req.Count
	if count < 1 {
		count = 1
	}

	valid := make([]string, 0, count)
	for i := 0; i < count; i++ {
		var refs []string
		switch {
		case req.Workflow == WorkflowCreate && i == 0:
			// first view establishes the product
			refs = nil
		case req.Workflow == WorkflowCreate:
			refs = valid[:1]
		default:
			refs = req.ReferenceImages
		}

		img, err := c.generateSingleImage(ctx, req.Prompt, refs, thinking, model, i, req.Texture)
		if req.OnImage != nil {
			req.OnImage(i+1, count)
		}
		if err != nil {
			c.logger.Error("image generation failed",
				zap.Int("index", i+1),
				zap.Int("count", count),
				zap.String("model", model),
				zap.Error(err))
			continue
		}
		if img == "" {
			c.logger.Warn("image generation returned no inline data",
				zap.Int("index", i+1),
				zap.Int("count", count))
			continue
		}
		valid = append(valid, img)
	}

	c.logger.Info("generated product images",
		zap.Int("valid", len(valid)),
		zap.Int("requested", count),
		zap.String("model", model))
	return valid, nil
}

func (c *Client) generateSingleImage(ctx context.Context, prompt string, refs []string, thinking, model string, angleIndex int, texture bool) (string, error) {
	finalPrompt := prompt
	if !texture {
		finalPrompt = enhancePrompt(prompt, angleIndex, len(refs) > 0)
	}

	parts := []geminiPart{{Text: finalPrompt}}
	if len(refs) > 0 {
		if inline := dataURLToInline(refs[0]); inline != nil {
			parts = append(parts, geminiPart{InlineData: inline})
		}
	}

	genCfg := &geminiGenConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig: &geminiImageConfig{
			// product views are square for 3D reconstruction
			AspectRatio: "1:1",
			ImageSize:   c.cfg.ImageSize,
		},
	}
	if thinking != "" {
		genCfg.ThinkingConfig = &geminiThinkingConfig{ThinkingLevel: thinking}
	}

	body := geminiRequest{
		Contents:         []geminiContent{{Parts: parts, Role: "user"}},
		GenerationConfig: genCfg,
	}

	payload, _ := json.Marshal(body)
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, model, c.cfg.APIKey)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", types.NewError(types.ErrUpstreamError, "gemini request failed").
			WithProvider("gemini").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return "", classifyAPIError(resp.StatusCode, string(errBody))
	}

	var gResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&gResp); err != nil {
		return "", fmt.Errorf("failed to decode gemini response: %w", err)
	}

	return extractFirstImage(&gResp), nil
}

// classifyAPIError maps a Gemini HTTP failure to a domain error code.
func classifyAPIError(status int, body string) error {
	lower := strings.ToLower(body)
	switch {
	case status == http.StatusTooManyRequests || strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota"):
		return types.NewError(types.ErrQuotaExceeded, "gemini quota exceeded").
			WithProvider("gemini").
			WithHTTPStatus(status).
			WithRetryable(true)
	case strings.Contains(lower, "safety") || strings.Contains(lower, "blocked"):
		return types.NewError(types.ErrContentFiltered, "prompt blocked by safety filters").
			WithProvider("gemini").
			WithHTTPStatus(status)
	default:
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("gemini error: status=%d body=%s", status, body)).
			WithProvider("gemini").
			WithHTTPStatus(status).
			WithRetryable(status >= 500)
	}
}

// extractFirstImage returns the first inline-data part as a PNG data URL,
// or empty when the response has none.
func extractFirstImage(resp *geminiResponse) string {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				return "data:image/png;base64," + part.InlineData.Data
			}
		}
	}
	return ""
}

// dataURLToInline converts a data URL into an inline request part. Anything
// that is not a data:image URL is ignored.
func dataURLToInline(s string) *geminiInline {
	if !strings.HasPrefix(s, "data:image") {
		return nil
	}
	header, b64, ok := strings.Cut(s, ",")
	if !ok {
		return nil
	}
	mime := strings.TrimPrefix(strings.SplitN(header, ";", 2)[0], "data:")
	return &geminiInline{MimeType: mime, Data: b64}
}

var _ Generator = (*Client)(nil)
