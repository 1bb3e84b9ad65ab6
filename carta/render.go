package carta

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

var colorParam = Color()

// RenderedViewURL returns a base64 PNG data URL of the rendered view. An
// empty background leaves the background transparent.
func (s *Session) RenderedViewURL(ctx context.Context, background string) (string, error) {
	if background != "" {
		if err := validateArgs([]Parameter{colorParam}, background); err != nil {
			return "", err
		}
	}
	if err := s.CallAction(ctx, "waitForImageData"); err != nil {
		return "", err
	}

	args := []any{}
	if background != "" {
		args = append(args, background)
	}
	raw, err := s.Call(ctx, ActionCall{Path: "getImageDataUrl", Args: args, ResponseExpected: true})
	if err != nil {
		return "", err
	}
	var url string
	if err := json.Unmarshal(raw, &url); err != nil {
		return "", fmt.Errorf("%w: data URL: %w", ErrBadResponse, err)
	}
	return url, nil
}

// RenderedViewData returns the decoded PNG data of the rendered view.
func (s *Session) RenderedViewData(ctx context.Context, background string) ([]byte, error) {
	url, err := s.RenderedViewURL(ctx, background)
	if err != nil {
		return nil, err
	}
	_, payload, ok := strings.Cut(url, ",")
	if !ok {
		return nil, fmt.Errorf("%w: not a data URL: %.40q", ErrBadResponse, url)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: decode image data: %w", ErrBadResponse, err)
	}
	return data, nil
}

// SaveRenderedView writes the rendered view to fileName as a PNG.
func (s *Session) SaveRenderedView(ctx context.Context, fileName, background string) error {
	if err := validateArgs([]Parameter{String("", false)}, fileName); err != nil {
		return err
	}
	data, err := s.RenderedViewData(ctx, background)
	if err != nil {
		return err
	}
	if err := os.WriteFile(fileName, data, 0o644); err != nil {
		return fmt.Errorf("carta: save rendered view: %w", err)
	}
	return nil
}
