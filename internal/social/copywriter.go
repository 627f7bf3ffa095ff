package social

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/dropship-ops/opsdash/internal/platform/httpx"
)

// Copywriter writes captions.
type Copywriter interface {
	Caption(ctx context.Context, req CaptionRequest) (string, error)
}

// GenAIConfig configures the Gemini copywriter. BaseURL and HTTPClient are
// optional overrides.
type GenAIConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GenAICopywriter generates captions with Gemini.
type GenAICopywriter struct {
	client *genai.Client
	model  string
}

// NewGenAICopywriter creates the copywriter. An empty key yields ErrCopywriterMissing.
func NewGenAICopywriter(ctx context.Context, cfg GenAIConfig) (*GenAICopywriter, error) {
	if cfg.APIKey == "" {
		return nil, ErrCopywriterMissing
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("social: genai client: %w", err)
	}
	return &GenAICopywriter{client: client, model: cfg.Model}, nil
}

const captionInstruction = "You write short, upbeat social media captions for an online store. " +
	"Reply with the caption only, no preamble, at most three hashtags."

// Caption asks the model for a caption.
func (c *GenAICopywriter) Caption(ctx context.Context, req CaptionRequest) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(captionPrompt(req)), &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(captionInstruction, genai.RoleUser),
		Temperature:       genai.Ptr[float32](0.8),
		MaxOutputTokens:   512,
	})
	if err != nil {
		return "", fmt.Errorf("social: generate caption: %w: %w", httpx.ErrUpstream, err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("social: generate caption: %w: empty response", httpx.ErrUpstream)
	}
	return text, nil
}

func captionPrompt(req CaptionRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Product: %s\n", req.ProductTitle)
	if req.Platform != "" {
		fmt.Fprintf(&b, "Platform: %s\n", req.Platform)
	}
	tone := req.Tone
	if tone == "" {
		tone = "friendly"
	}
	fmt.Fprintf(&b, "Tone: %s\n", tone)
	if req.Notes != "" {
		fmt.Fprintf(&b, "Notes: %s\n", req.Notes)
	}
	return b.String()
}
