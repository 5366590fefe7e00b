package threed

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

const trellisModel = "fal-ai/trellis"

// Client generates 3D assets with the Trellis model through the fal.ai
// queue API: submit, poll status, fetch result.
type Client struct {
	cfg          config.TrellisConfig
	http         *http.Client
	logger       *zap.Logger
	pollInterval time.Duration
}

// NewClient creates a Trellis client. A missing API key fails here.
func NewClient(cfg config.TrellisConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, types.NewError(types.ErrNotConfigured, "fal.ai API key not set").
			WithProvider("trellis").
			WithHTTPStatus(http.StatusServiceUnavailable)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://queue.fal.run"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}

	return &Client{
		cfg:          cfg,
		http:         &http.Client{Timeout: 60 * time.Second},
		logger:       logger.With(zap.String("component", "trellis")),
		pollInterval: 3 * time.Second,
	}, nil
}

type submitRequest struct {
	ImageURL             string   `json:"image_url,omitempty"`
	ImageURLs            []string `json:"image_urls,omitempty"`
	MultiImageAlgo       string   `json:"multiimage_algo,omitempty"`
	Seed                 int      `json:"seed"`
	TextureSize          int      `json:"texture_size"`
	MeshSimplify         float64  `json:"mesh_simplify"`
	SSSamplingSteps      int      `json:"ss_sampling_steps"`
	SSGuidanceStrength   float64  `json:"ss_guidance_strength"`
	SlatSamplingSteps    int      `json:"slat_sampling_steps"`
	SlatGuidanceStrength float64  `json:"slat_guidance_strength"`
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
}

type statusResponse struct {
	Status string `json:"status"`
	Logs   []struct {
		Message string `json:"message"`
	} `json:"logs"`
}

// trellisResult decodes the two wire forms of model_mesh: an object with a
// url field, or a bare string URL.
type trellisResult struct {
	ModelMesh          json.RawMessage `json:"model_mesh"`
	NoBackgroundImages []struct {
		URL string `json:"url"`
	} `json:"no_background_images"`
}

func (r *trellisResult) modelURL() string {
	if len(r.ModelMesh) == 0 {
		return ""
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(r.ModelMesh, &obj); err == nil && obj.URL != "" {
		return obj.URL
	}
	var s string
	if err := json.Unmarshal(r.ModelMesh, &s); err == nil {
		return s
	}
	return ""
}

// GenerateAsset submits the input views to the queue and blocks until the
// request completes, reporting progress along the way. A failed or empty
// result is terminal; the caller decides whether to start over.
func (c *Client) GenerateAsset(ctx context.Context, images []string, progress ProgressFunc) (*Artifacts, error) {
	if len(images) == 0 {
		return nil, types.NewError(types.ErrInvalidRequest, "no images provided")
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	sub, err := c.submit(ctx, images)
	if err != nil {
		return nil, err
	}
	c.logger.Info("submitted trellis request",
		zap.String("request_id", sub.RequestID),
		zap.Int("images", len(images)))

	if err := c.waitForCompletion(ctx, sub, progress); err != nil {
		return nil, err
	}

	result, err := c.fetchResult(ctx, sub)
	if err != nil {
		return nil, err
	}

	url := result.modelURL()
	if url == "" {
		return nil, types.NewError(types.ErrGenerationFailed, "no model mesh in trellis result").
			WithProvider("trellis")
	}

	out := &Artifacts{ModelFile: url}
	for _, img := range result.NoBackgroundImages {
		if img.URL != "" {
			out.NoBackgroundImages = append(out.NoBackgroundImages, img.URL)
		}
	}

	c.logger.Info("trellis generation complete",
		zap.String("request_id", sub.RequestID),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (c *Client) submit(ctx context.Context, images []string) (*submitResponse, error) {
	body := submitRequest{
		Seed:                 c.cfg.Seed,
		TextureSize:          c.cfg.TextureSize,
		MeshSimplify:         c.cfg.MeshSimplify,
		SSSamplingSteps:      c.cfg.SSSamplingSteps,
		SSGuidanceStrength:   c.cfg.SSGuidanceStrength,
		SlatSamplingSteps:    c.cfg.SlatSamplingSteps,
		SlatGuidanceStrength: c.cfg.SlatGuidanceStrength,
	}
	if c.cfg.EnableMultiImage && len(images) > 1 {
		body.ImageURLs = images
		body.MultiImageAlgo = c.cfg.MultiImageAlgo
	} else {
		body.ImageURL = images[0]
	}

	payload, _ := json.Marshal(body)
	endpoint := fmt.Sprintf("%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), trellisModel)

	var resp submitResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		return nil, err
	}
	if resp.RequestID == "" {
		return nil, types.NewError(types.ErrUpstreamError, "queue submit returned no request id").
			WithProvider("trellis")
	}
	if resp.StatusURL == "" {
		resp.StatusURL = fmt.Sprintf("%s/%s/requests/%s/status",
			strings.TrimRight(c.cfg.BaseURL, "/"), trellisModel, resp.RequestID)
	}
	if resp.ResponseURL == "" {
		resp.ResponseURL = fmt.Sprintf("%s/%s/requests/%s",
			strings.TrimRight(c.cfg.BaseURL, "/"), trellisModel, resp.RequestID)
	}
	return &resp, nil
}

func (c *Client) waitForCompletion(ctx context.Context, sub *submitResponse, progress ProgressFunc) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return types.NewError(types.ErrUpstreamTimeout, "trellis generation timed out").
				WithProvider("trellis").
				WithRetryable(true).
				WithCause(ctx.Err())
		case <-ticker.C:
			var st statusResponse
			if err := c.doJSON(ctx, http.MethodGet, sub.StatusURL+"?logs=1", nil, &st); err != nil {
				c.logger.Warn("status poll failed", zap.Error(err))
				continue
			}

			c.report(progress, st)

			switch st.Status {
			case "COMPLETED":
				return nil
			case "FAILED", "ERROR", "CANCELLED":
				return types.NewError(types.ErrGenerationFailed,
					fmt.Sprintf("trellis generation failed: %s", st.Status)).
					WithProvider("trellis")
			}
		}
	}
}

// report maps queue statuses to fixed progress milestones and forwards the
// most recent log line as the display message.
func (c *Client) report(progress ProgressFunc, st statusResponse) {
	if progress == nil {
		return
	}

	val := 60
	switch st.Status {
	case "IN_QUEUE":
		val = 50
	case "IN_PROGRESS":
		val = 70
	}

	msg := st.Status
	for _, log := range st.Logs {
		if log.Message != "" {
			msg = log.Message
		}
	}
	if msg != "" {
		progress(val, "Trellis: "+msg)
	}
}

func (c *Client) fetchResult(ctx context.Context, sub *submitResponse) (*trellisResult, error) {
	var result trellisResult
	if err := c.doJSON(ctx, http.MethodGet, sub.ResponseURL, nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Key "+c.cfg.APIKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return types.NewError(types.ErrUpstreamTimeout, "trellis generation timed out").
				WithProvider("trellis").
				WithRetryable(true).
				WithCause(err)
		}
		return types.NewError(types.ErrUpstreamError, "fal.ai request failed").
			WithProvider("trellis").
			WithRetryable(true).
			WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		errBody, _ := io.ReadAll(resp.Body)
		return types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("fal.ai error: status=%d body=%s", resp.StatusCode, string(errBody))).
			WithProvider("trellis").
			WithHTTPStatus(resp.StatusCode).
			WithRetryable(resp.StatusCode >= 500)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

var _ Generator = (*Client)(nil)
