// Package ai normalizes the external image-generation provider behind a
// single interface. Callers only see the normalized result; vendor JSON
// shapes never leave this package.
package ai

import (
	"context"
	"errors"
)

var ErrUnavailable = errors.New("ai provider unavailable")

type Request struct {
	Image      []byte
	MimeType   string
	Operation  string
	Parameters map[string]string
}

// Result is the normalized provider outcome. Image is nil when the provider
// answered with text only; callers decide how to handle that.
type Result struct {
	Image    []byte
	MimeType string
	Text     string
}

type Provider interface {
	Enhance(ctx context.Context, req Request) (*Result, error)
}
