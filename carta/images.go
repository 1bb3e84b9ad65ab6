package carta

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
)

var hduParam = String(`\d+`, false)

// OpenImage opens an image, closing every image already open. path is
// relative to the current directory or absolute; hdu may be empty to select
// the default HDU.
func (s *Session) OpenImage(ctx context.Context, path, hdu string) (*Image, error) {
	return s.newImage(ctx, path, hdu, false)
}

// AppendImage opens an image alongside the images already open.
func (s *Session) AppendImage(ctx context.Context, path, hdu string) (*Image, error) {
	return s.newImage(ctx, path, hdu, true)
}

func (s *Session) newImage(ctx context.Context, filePath, hdu string, appendImage bool) (*Image, error) {
	if err := validateArgs([]Parameter{String("", false)}, filePath); err != nil {
		return nil, err
	}
	if hdu != "" {
		if err := validateArgs([]Parameter{hduParam}, hdu); err != nil {
			return nil, err
		}
	}

	resolved, err := s.ResolveFilePath(ctx, filePath)
	if err != nil {
		return nil, err
	}
	directory, fileName := path.Split(resolved)
	directory = strings.TrimSuffix(directory, "/")
	if directory == "" {
		directory = "/"
	}

	savedPwd, err := s.Pwd(ctx)
	if err != nil {
		return nil, err
	}

	action := "openFile"
	if appendImage {
		action = "appendFile"
	}
	raw, err := s.Call(ctx, ActionCall{
		Path:             action,
		Args:             []any{directory, fileName, hdu},
		ResponseExpected: true,
	})
	if err != nil {
		return nil, err
	}
	var imageID int
	if err := json.Unmarshal(raw, &imageID); err != nil {
		return nil, fmt.Errorf("%w: image ID %s: %w", ErrBadResponse, raw, err)
	}

	if err := s.Cd(ctx, savedPwd); err != nil {
		return nil, err
	}

	s.logger.Debug("opened image", "image_id", imageID, "file", resolved, "append", appendImage)
	return newImage(s, imageID, fileName), nil
}

// ImageList returns the images currently open.
func (s *Session) ImageList(ctx context.Context) ([]*Image, error) {
	var frames []struct {
		Value int    `json:"value"`
		Label string `json:"label"`
	}
	if err := s.GetValue(ctx, "frameNames", &frames); err != nil {
		return nil, err
	}
	images := make([]*Image, 0, len(frames))
	for _, f := range frames {
		images = append(images, newImage(s, f.Value, fileNameFromLabel(f.Label)))
	}
	return images, nil
}

// fileNameFromLabel extracts the file name from a frame label of the form
// "<index>: <file name>".
func fileNameFromLabel(label string) string {
	if _, name, ok := strings.Cut(label, ":"); ok {
		return strings.TrimSpace(name)
	}
	return strings.TrimSpace(label)
}

// ActiveFrame returns the currently active image.
func (s *Session) ActiveFrame(ctx context.Context) (*Image, error) {
	var info struct {
		FileID   int `json:"fileId"`
		FileInfo struct {
			Name string `json:"name"`
		} `json:"fileInfo"`
	}
	if err := s.GetValue(ctx, "activeFrame.frameInfo", &info); err != nil {
		return nil, err
	}
	return newImage(s, info.FileID, info.FileInfo.Name), nil
}

// ClearSpatialReference clears the spatial reference image.
func (s *Session) ClearSpatialReference(ctx context.Context) error {
	return s.CallAction(ctx, "clearSpatialReference")
}

// ClearSpectralReference clears the spectral reference image.
func (s *Session) ClearSpectralReference(ctx context.Context) error {
	return s.CallAction(ctx, "clearSpectralReference")
}
