// Package gemini implements the ai.Provider interface against Google's
// Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/anmolmahajan9/photo20-app/internal/ai"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
)

const (
	// APIBaseURL is the base URL for the Gemini generateContent API;
	// the model name and :generateContent are appended.
	APIBaseURL = "https://generativelanguage.googleapis.com/v1beta/models"

	// DefaultImageModel produces styled product images.
	DefaultImageModel = "gemini-2.5-flash-image-preview"

	// DefaultTextModel produces the structured idea suggestions.
	DefaultTextModel = "gemini-2.5-flash"
)

// Config contains configuration for the Gemini provider.
type Config struct {
	APIKey         string
	ImageModel     string
	TextModel      string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Provider using the Gemini API.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Gemini provider.
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	// Set defaults
	if config.ImageModel == "" {
		config.ImageModel = DefaultImageModel
	}
	if config.TextModel == "" {
		config.TextModel = DefaultTextModel
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 120 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// GenerateImage renders a new product photo per the instruction.
func (p *Provider) GenerateImage(ctx context.Context, params ai.GenerateImageParams) (*ai.GeneratedImage, error) {
	startTime := time.Now()

	if err := ai.ValidateImage(params.Image); err != nil {
		return nil, ai.WrapError("generate image", err)
	}
	if strings.TrimSpace(params.Instruction) == "" {
		return nil, ai.WrapError("generate image", fmt.Errorf("instruction is required"))
	}

	body, err := json.Marshal(apiRequest{
		Contents: []apiContent{{
			Parts: []apiPart{
				{InlineData: &apiInlineData{
					MimeType: params.Image.ContentType,
					Data:     base64.StdEncoding.EncodeToString(params.Image.Data),
				}},
				{Text: params.Instruction},
			},
		}},
		GenerationConfig: &apiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	})
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, p.config.ImageModel, body)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	image, err := parseImageResponse(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	p.logger.Info("generated image",
		"model", p.config.ImageModel,
		"user_id", params.UserID,
		"duration", time.Since(startTime),
		"output_bytes", len(image.Data),
	)

	return &ai.GeneratedImage{
		Image:    *image,
		Model:    p.config.ImageModel,
		Duration: time.Since(startTime),
	}, nil
}

// SuggestThemeIdeas asks the text model for three photoshoot ideas as JSON.
func (p *Provider) SuggestThemeIdeas(ctx context.Context, params ai.IdeaParams) ([]domain.Idea, error) {
	if err := ai.ValidateImage(params.Image); err != nil {
		return nil, ai.WrapError("suggest ideas", err)
	}

	body, err := json.Marshal(apiRequest{
		Contents: []apiContent{{
			Parts: []apiPart{
				{InlineData: &apiInlineData{
					MimeType: params.Image.ContentType,
					Data:     base64.StdEncoding.EncodeToString(params.Image.Data),
				}},
				{Text: ai.IdeasPrompt(params.Template)},
			},
		}},
		GenerationConfig: &apiGenerationConfig{
			ResponseMimeType: "application/json",
		},
	})
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, p.config.TextModel, body)
	if err != nil {
		return nil, ai.WrapError("execute request", err)
	}

	ideas, err := parseIdeasResponse(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}

	p.logger.Info("suggested theme ideas",
		"model", p.config.TextModel,
		"user_id", params.UserID,
		"template", params.Template,
		"count", len(ideas),
	)

	return ideas, nil
}

// executeWithRetry executes a generateContent call with exponential backoff.
func (p *Provider) executeWithRetry(ctx context.Context, model string, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, model, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !ai.IsRetryable(err) {
			return nil, err
		}
		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("retrying model request", "model", model, "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

// executeRequest executes a single generateContent call.
func (p *Provider) executeRequest(ctx context.Context, model string, body []byte) (*apiResponse, error) {
	url := fmt.Sprintf("%s/%s:generateContent", APIBaseURL, model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Network errors are typically retryable
		return nil, ai.ErrUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps Gemini HTTP status codes to provider errors.
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.ErrUnauthorized
	case http.StatusTooManyRequests:
		return ai.ErrRateLimited
	case http.StatusRequestTimeout:
		return ai.ErrTimeout
	case http.StatusBadRequest:
		if strings.Contains(strings.ToLower(errResp.Error.Message), "image") {
			return ai.ErrInvalidImage
		}
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusInternalServerError, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ai.ErrUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

// parseImageResponse extracts the first inline image from the response.
// The model interleaves text and image parts; only the image matters here.
func parseImageResponse(resp *apiResponse) (*domain.ImagePayload, error) {
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return nil, fmt.Errorf("decode image data: %w", err)
			}
			contentType := part.InlineData.MimeType
			if contentType == "" {
				contentType = "image/png"
			}
			return &domain.ImagePayload{Data: data, ContentType: contentType}, nil
		}
	}
	return nil, ai.ErrNoImage
}

// parseIdeasResponse extracts the three theme ideas from a JSON text reply.
func parseIdeasResponse(resp *apiResponse) ([]domain.Idea, error) {
	var textContent string
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				textContent = part.Text
				break
			}
		}
		if textContent != "" {
			break
		}
	}
	if textContent == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	var output ideasOutput
	if err := json.Unmarshal([]byte(textContent), &output); err != nil {
		return nil, fmt.Errorf("parse ideas output: %w", err)
	}
	if len(output.Ideas) == 0 {
		return nil, fmt.Errorf("model returned no ideas")
	}

	ideas := make([]domain.Idea, 0, len(output.Ideas))
	for _, idea := range output.Ideas {
		if idea.ShortPhrase == "" || idea.DetailedPrompt == "" {
			continue
		}
		ideas = append(ideas, domain.Idea{
			ShortPhrase:    idea.ShortPhrase,
			DetailedPrompt: idea.DetailedPrompt,
		})
	}
	if len(ideas) == 0 {
		return nil, fmt.Errorf("model returned no usable ideas")
	}
	return ideas, nil
}

// API request/response types

type apiRequest struct {
	Contents         []apiContent         `json:"contents"`
	GenerationConfig *apiGenerationConfig `json:"generationConfig,omitempty"`
}

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text       string         `json:"text,omitempty"`
	InlineData *apiInlineData `json:"inlineData,omitempty"`
}

type apiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type apiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	ResponseMimeType   string   `json:"responseMimeType,omitempty"`
}

type apiResponse struct {
	Candidates []apiCandidate `json:"candidates"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type apiErrorResponse struct {
	Error apiError `json:"error"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// ideasOutput is the JSON structure the text model is asked to return.
type ideasOutput struct {
	Ideas []outputIdea `json:"ideas"`
}

type outputIdea struct {
	ShortPhrase    string `json:"shortPhrase"`
	DetailedPrompt string `json:"detailedPrompt"`
}
