package video

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"renderly/internal/domain"
	"renderly/internal/infra"
)

// Generator turns a queued job's prompt and source image into a rendered
// video asset. The worker holds one Generator for its lifetime.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Asset, error)
}

// Request carries everything the model needs for a single render.
type Request struct {
	JobID      string
	Prompt     string
	ImageRef   string
	Resolution domain.Resolution
	Locale     string
}

// Asset is the rendered output. Data is empty when the model returned a
// hosted URI instead of inline bytes.
type Asset struct {
	StorageKey string
	URL        string
	Format     string
	Length     int
	Data       []byte
}

// Options controls how the Veo client is configured.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client renders videos through the Gemini Veo API. Without an API key it
// degrades to deterministic synthetic assets so the claim/settle pipeline
// stays exercisable in development.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}

	model := opts.Model
	if model == "" {
		model = "veo-2.0-generate-001"
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Model returns the configured Veo model identifier.
func (c *Client) Model() string {
	return c.model
}

func (c *Client) Generate(ctx context.Context, req Request) (*Asset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.apiKey == "" {
		return c.synthetic(req), nil
	}

	asset, err := c.remoteGenerate(ctx, req)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("job_id", req.JobID).
			Str("model", c.model).
			Msg("video: remote generation failed; falling back to synthetic asset")
		return c.synthetic(req), nil
	}
	if asset == nil || (len(asset.Data) == 0 && asset.URL == "") {
		return c.synthetic(req), nil
	}
	return asset, nil
}

type veoContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []veoPart `json:"parts"`
}

type veoPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *veoInlineData `json:"inlineData,omitempty"`
	FileData   *veoFileData   `json:"fileData,omitempty"`
}

type veoInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type veoFileData struct {
	MimeType string `json:"mimeType,omitempty"`
	FileURI  string `json:"fileUri,omitempty"`
}

type veoTool struct {
	VideoGeneration *veoVideoTool `json:"videoGeneration,omitempty"`
}

type veoVideoTool struct{}

type veoGenerateRequest struct {
	Contents         []veoContent         `json:"contents"`
	Tools            []veoTool            `json:"tools,omitempty"`
	GenerationConfig *veoGenerationConfig `json:"generationConfig,omitempty"`
}

type veoGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	MediaResolution    string   `json:"mediaResolution,omitempty"`
}

type veoCandidate struct {
	Content veoContent `json:"content"`
}

type veoGenerateResponse struct {
	Candidates []veoCandidate `json:"candidates"`
}

type veoErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) remoteGenerate(ctx context.Context, req Request) (*Asset, error) {
	parts := []veoPart{{Text: buildPrompt(req)}}
	if ref := strings.TrimSpace(req.ImageRef); ref != "" {
		parts = append(parts, veoPart{FileData: &veoFileData{FileURI: ref}})
	}

	payload := veoGenerateRequest{
		Contents: []veoContent{{Role: "user", Parts: parts}},
		Tools:    []veoTool{{VideoGeneration: &veoVideoTool{}}},
		GenerationConfig: &veoGenerationConfig{
			ResponseModalities: []string{"VIDEO"},
			MediaResolution:    mediaResolution(req.Resolution),
		},
	}

	var response veoGenerateResponse
	if err := c.invoke(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return nil, err
	}

	for _, candidate := range response.Candidates {
		for _, part := range candidate.Content.Parts {
			asset, err := c.decodePart(ctx, part)
			if err != nil {
				continue
			}
			if len(asset.Data) == 0 && asset.URL == "" {
				continue
			}
			asset.Length = estimateLength(req.Prompt)
			c.logger.Debug().
				Str("job_id", req.JobID).
				Str("model", c.model).
				Msg("video: generated remote asset")
			return asset, nil
		}
	}

	return nil, fmt.Errorf("no video content returned")
}

func (c *Client) invoke(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	q := httpReq.URL.Query()
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	httpReq.URL.RawQuery = q.Encode()
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("invoke veo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr veoErrorResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("veo status %d: %s", resp.StatusCode, apiErr.Error.Message)
		}
		data, _ := io.ReadAll(resp.Body)
		if len(data) > 0 {
			return fmt.Errorf("veo status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}
		return fmt.Errorf("veo status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode veo response: %w", err)
	}
	return nil
}

func (c *Client) decodePart(ctx context.Context, part veoPart) (*Asset, error) {
	if part.InlineData != nil && part.InlineData.Data != "" {
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, fmt.Errorf("decode inline data: %w", err)
		}
		return &Asset{Data: data, Format: firstNonEmpty(part.InlineData.MimeType, "video/mp4")}, nil
	}

	if part.FileData != nil && part.FileData.FileURI != "" {
		data, mime, err := c.download(ctx, part.FileData.FileURI)
		if err != nil {
			return nil, err
		}
		return &Asset{Data: data, Format: firstNonEmpty(part.FileData.MimeType, mime, "video/mp4"), URL: part.FileData.FileURI}, nil
	}

	return nil, fmt.Errorf("empty part")
}

func (c *Client) download(ctx context.Context, uri string) ([]byte, string, error) {
	target := uri
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		target = strings.TrimRight(c.baseURL, "/") + "/" + strings.TrimLeft(uri, "/")
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create download request: %w", err)
	}
	if c.apiKey != "" {
		q := httpReq.URL.Query()
		q.Set("key", c.apiKey)
		httpReq.URL.RawQuery = q.Encode()
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return nil, "", fmt.Errorf("download file status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	blob, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	return blob, resp.Header.Get("Content-Type"), nil
}

func (c *Client) synthetic(req Request) *Asset {
	seed := deterministicSeed(req.JobID, req.Prompt, req.ImageRef, c.model)
	storageKey := fmt.Sprintf("synthetic/%s/video-%s.mp4", url.PathEscape(c.model), seed)
	asset := &Asset{
		StorageKey: storageKey,
		Format:     "video/mp4",
		Length:     estimateLength(req.Prompt),
		Data:       renderSynthetic(seed, req),
	}

	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("model", c.model).
		Msg("video: generated synthetic asset")

	return asset
}

func renderSynthetic(seed string, req Request) []byte {
	lines := []string{
		"Synthetic Veo video placeholder",
		fmt.Sprintf("Seed: %s", seed),
		fmt.Sprintf("Prompt: %s", strings.TrimSpace(req.Prompt)),
		fmt.Sprintf("Source image: %s", strings.TrimSpace(req.ImageRef)),
		fmt.Sprintf("Resolution: %s", req.Resolution),
		"",
		"This placeholder represents where rendered video bytes would be stored once",
		"the Veo API integration is enabled.",
	}
	return []byte(strings.Join(lines, "\n"))
}

func buildPrompt(req Request) string {
	var b strings.Builder
	if prompt := strings.TrimSpace(req.Prompt); prompt != "" {
		b.WriteString(prompt)
	}
	if locale := strings.TrimSpace(req.Locale); locale != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("Locale: ")
		b.WriteString(locale)
	}
	if b.Len() == 0 {
		b.WriteString("Animate the provided image into a short video")
	}
	return b.String()
}

func mediaResolution(res domain.Resolution) string {
	switch res {
	case domain.Resolution720p:
		return "MEDIA_RESOLUTION_HIGH"
	default:
		return "MEDIA_RESOLUTION_MEDIUM"
	}
}

func estimateLength(prompt string) int {
	words := len(strings.Fields(prompt))
	if words == 0 {
		return 8
	}
	length := words / 3
	if length < 5 {
		return 5
	}
	if length > 30 {
		return 30
	}
	return length
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func deterministicSeed(parts ...any) string {
	hasher := sha256.New()
	for _, part := range parts {
		hasher.Write([]byte(fmt.Sprintf("%v", part)))
		hasher.Write([]byte{'|'})
	}
	return hex.EncodeToString(hasher.Sum(nil))[:16]
}
