package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"photofix/internal/models"
)

// Prompts per operation. These instruct the model to edit, not regenerate:
// facial identity must survive every operation.
var operationPrompts = map[string]string{
	models.OpEnhance:       "Enhance this photo naturally. Keep all faces exactly the same - do not change any facial features, identity, or appearance of any person. Only improve lighting, colors, and clarity.",
	models.OpRestore:       "Restore this old or damaged photo. Repair scratches, tears and fading. Keep all faces exactly the same - do not change any facial features or identity.",
	models.OpFaceSwap:      "Swap the faces in this photo as directed by the parameters, blending skin tone and lighting naturally.",
	models.OpAging:         "Age the person in this photo naturally according to the requested target age, preserving their identity.",
	models.OpStyleTransfer: "Re-render this photo in the requested artistic style while keeping the composition and subjects recognizable.",
	models.OpUpscale:       "Upscale this photo to a higher resolution. Sharpen details without inventing new content.",
	models.OpFilter:        "Apply the requested filter to this photo. Keep all faces exactly the same.",
}

// OpenRouter calls the OpenRouter chat-completions endpoint with an image
// part and extracts the returned inline image, if any.
type OpenRouter struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

func NewOpenRouter(apiKey, baseURL, model string) *OpenRouter {
	return &OpenRouter{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{},
	}
}

type imageURL struct {
	URL string `json:"url"`
}

type chatMessagePart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string            `json:"role"`
	Content []chatMessagePart `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenRouter) Enhance(ctx context.Context, req Request) (*Result, error) {
	if o.apiKey == "" {
		return nil, fmt.Errorf("%w: api key not configured", ErrUnavailable)
	}

	prompt := operationPrompts[req.Operation]
	if prompt == "" {
		prompt = operationPrompts[models.OpEnhance]
	}
	if extra := req.Parameters["prompt"]; extra != "" {
		prompt = prompt + " " + extra
	}

	dataURL := fmt.Sprintf("data:%s;base64,%s", req.MimeType, base64.StdEncoding.EncodeToString(req.Image))
	body := chatRequest{
		Model:     o.model,
		MaxTokens: 4096,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatMessagePart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
			},
		}},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(raw))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	return normalizeContent(parsed.Choices[0].Message.Content)
}

// normalizeContent handles the two shapes the API returns: an array of typed
// parts, or a plain string which may itself be a data URL.
func normalizeContent(raw json.RawMessage) (*Result, error) {
	var parts []chatMessagePart
	if err := json.Unmarshal(raw, &parts); err == nil {
		var text strings.Builder
		for _, part := range parts {
			if part.Type == "image_url" && part.ImageURL != nil {
				if result, ok := decodeDataURL(part.ImageURL.URL); ok {
					return result, nil
				}
			}
			if part.Type == "text" && part.Text != "" {
				if text.Len() > 0 {
					text.WriteString("\n")
				}
				text.WriteString(part.Text)
			}
		}
		return &Result{Text: text.String()}, nil
	}

	var content string
	if err := json.Unmarshal(raw, &content); err != nil {
		return nil, fmt.Errorf("%w: unrecognized content shape", ErrUnavailable)
	}
	if result, ok := decodeDataURL(content); ok {
		return result, nil
	}
	return &Result{Text: content}, nil
}

func decodeDataURL(url string) (*Result, bool) {
	if !strings.HasPrefix(url, "data:") {
		return nil, false
	}
	meta, payload, found := strings.Cut(url, ",")
	if !found {
		return nil, false
	}
	image, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, false
	}
	mimeType := strings.TrimPrefix(meta, "data:")
	mimeType = strings.TrimSuffix(mimeType, ";base64")
	if mimeType == "" {
		mimeType = "image/png"
	}
	return &Result{Image: image, MimeType: mimeType}, true
}
