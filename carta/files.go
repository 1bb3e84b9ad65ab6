package carta

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

var startingDirectory = NewMacro("fileBrowserStore", "startingDirectory")

// ResolveFilePath turns a path relative to the current directory into an
// absolute path relative to the backend's root directory. Absolute paths are
// returned unchanged.
func (s *Session) ResolveFilePath(ctx context.Context, path string) (string, error) {
	if strings.HasPrefix(path, "/") {
		return path, nil
	}
	pwd, err := s.Pwd(ctx)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(pwd, "/") + "/" + path, nil
}

// Pwd returns the session's current directory.
func (s *Session) Pwd(ctx context.Context) (string, error) {
	if err := s.CallAction(ctx, "fileBrowserStore.getFileList", startingDirectory); err != nil {
		return "", err
	}
	var directory string
	if err := s.GetValue(ctx, "fileBrowserStore.fileList.directory", &directory); err != nil {
		return "", err
	}
	return "/" + strings.TrimPrefix(directory, "/"), nil
}

// fileEntry accepts both a bare name and an object with a name field.
type fileEntry string

func (e *fileEntry) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		*e = fileEntry(name)
		return nil
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*e = fileEntry(obj.Name)
	return nil
}

// Ls returns the sorted contents of the current directory. Subdirectories
// carry a trailing slash.
func (s *Session) Ls(ctx context.Context) ([]string, error) {
	if err := s.CallAction(ctx, "fileBrowserStore.getFileList", startingDirectory); err != nil {
		return nil, err
	}
	var fileList struct {
		Files          []fileEntry `json:"files"`
		Subdirectories []fileEntry `json:"subdirectories"`
	}
	if err := s.GetValue(ctx, "fileBrowserStore.fileList", &fileList); err != nil {
		return nil, err
	}

	items := make([]string, 0, len(fileList.Files)+len(fileList.Subdirectories))
	for _, f := range fileList.Files {
		items = append(items, string(f))
	}
	for _, d := range fileList.Subdirectories {
		items = append(items, string(d)+"/")
	}
	sort.Strings(items)
	return items, nil
}

// Cd changes the current directory. path may be absolute or relative to
// the current directory; ".." is not supported. If the frontend does not
// accept the new directory, the previous one is restored and
// ErrDirectoryChange is returned.
func (s *Session) Cd(ctx context.Context, path string) error {
	if err := validateArgs([]Parameter{String("", false)}, path); err != nil {
		return err
	}
	previous, err := s.Pwd(ctx)
	if err != nil {
		return err
	}
	fullPath := path
	if !strings.HasPrefix(path, "/") {
		fullPath = strings.TrimSuffix(previous, "/") + "/" + path
	}
	fullPath = strings.TrimSuffix(fullPath, "/")
	if fullPath == "" {
		fullPath = "/"
	}

	if err := s.CallAction(ctx, "fileBrowserStore.saveStartingDirectory", fullPath); err != nil {
		return err
	}
	pwd, err := s.Pwd(ctx)
	if err != nil {
		return err
	}
	if pwd == fullPath {
		return nil
	}

	s.logger.Warn("could not change directory", "path", fullPath, "restored", previous)
	if err := s.CallAction(ctx, "fileBrowserStore.saveStartingDirectory", previous); err != nil {
		return err
	}
	return fmt.Errorf("%w to %s", ErrDirectoryChange, fullPath)
}
