package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photofix/internal/models"
)

func chatCompletion(content any) string {
	raw, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(raw)
}

func TestEnhanceExtractsImagePart(t *testing.T) {
	image := []byte("result-image-bytes")
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)

	var captured chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, chatCompletion([]map[string]any{
			{"type": "text", "text": "Here is your enhanced photo."},
			{"type": "image_url", "image_url": map[string]string{"url": dataURL}},
		}))
	}))
	defer server.Close()

	provider := NewOpenRouter("test-key", server.URL, "test-model")
	result, err := provider.Enhance(context.Background(), Request{
		Image:     []byte("original"),
		MimeType:  "image/jpeg",
		Operation: models.OpEnhance,
	})
	require.NoError(t, err)
	assert.Equal(t, image, result.Image)
	assert.Equal(t, "image/png", result.MimeType)

	// The outbound request carries the prompt and the original as a data URL.
	require.Len(t, captured.Messages, 1)
	require.Len(t, captured.Messages[0].Content, 2)
	assert.Equal(t, "test-model", captured.Model)
	assert.Contains(t, captured.Messages[0].Content[0].Text, "Enhance this photo")
	require.NotNil(t, captured.Messages[0].Content[1].ImageURL)
	assert.Contains(t, captured.Messages[0].Content[1].ImageURL.URL, "data:image/jpeg;base64,")
}

func TestEnhanceStringContentDataURL(t *testing.T) {
	image := []byte("inline-image")
	dataURL := "data:image/webp;base64," + base64.StdEncoding.EncodeToString(image)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletion(dataURL))
	}))
	defer server.Close()

	provider := NewOpenRouter("test-key", server.URL, "test-model")
	result, err := provider.Enhance(context.Background(), Request{Image: []byte("x"), MimeType: "image/jpeg", Operation: models.OpRestore})
	require.NoError(t, err)
	assert.Equal(t, image, result.Image)
	assert.Equal(t, "image/webp", result.MimeType)
}

func TestEnhanceTextOnlyResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, chatCompletion("I am unable to edit this photo."))
	}))
	defer server.Close()

	provider := NewOpenRouter("test-key", server.URL, "test-model")
	result, err := provider.Enhance(context.Background(), Request{Image: []byte("x"), MimeType: "image/jpeg", Operation: models.OpEnhance})
	require.NoError(t, err)
	assert.Nil(t, result.Image)
	assert.Equal(t, "I am unable to edit this photo.", result.Text)
}

func TestEnhanceUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	provider := NewOpenRouter("test-key", server.URL, "test-model")
	_, err := provider.Enhance(context.Background(), Request{Image: []byte("x"), MimeType: "image/jpeg", Operation: models.OpEnhance})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEnhanceRequiresAPIKey(t *testing.T) {
	provider := NewOpenRouter("", "http://unused", "test-model")
	_, err := provider.Enhance(context.Background(), Request{Image: []byte("x"), MimeType: "image/jpeg", Operation: models.OpEnhance})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEnhanceEmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	provider := NewOpenRouter("test-key", server.URL, "test-model")
	_, err := provider.Enhance(context.Background(), Request{Image: []byte("x"), MimeType: "image/jpeg", Operation: models.OpEnhance})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNormalizeContentPrefersImageOverText(t *testing.T) {
	image := []byte("abc")
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
	raw, _ := json.Marshal([]chatMessagePart{
		{Type: "text", Text: "caption"},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
	})

	result, err := normalizeContent(raw)
	require.NoError(t, err)
	assert.Equal(t, image, result.Image)
}

func TestDecodeDataURL(t *testing.T) {
	result, ok := decodeDataURL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("x")))
	require.True(t, ok)
	assert.Equal(t, "image/jpeg", result.MimeType)

	_, ok = decodeDataURL("https://example.com/image.png")
	assert.False(t, ok)
	_, ok = decodeDataURL("data:image/png;base64,!!!not-base64!!!")
	assert.False(t, ok)
}
