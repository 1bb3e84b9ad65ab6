// Package frontendsim simulates a CARTA frontend session. A Store holds the
// frontend's object tree and answers scripting actions against it; a Client
// connects a Store to a relay over WebSocket, and a Servicer exposes Stores
// directly as a CartaBackend service for in-process use.
package frontendsim

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"log/slog"
	"path"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
)

// ErrUnknownAction is returned for actions the simulated frontend does not
// implement.
var ErrUnknownAction = errors.New("unknown action")

// Option configures a Store.
type Option func(*Store)

// WithCatalog sets the image catalog used for image dimensions.
func WithCatalog(c *Catalog) Option {
	return func(s *Store) { s.catalog = c }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Store is the object tree of one simulated frontend session. It is safe
// for concurrent use; actions are applied one at a time.
type Store struct {
	mu      sync.Mutex
	fsys    fs.FS
	catalog *Catalog
	logger  *slog.Logger

	root     map[string]any
	frameMap map[string]any
	order    []int
	nextID   int
	activeID int
}

// NewStore returns a store browsing files in fsys.
func NewStore(fsys fs.FS, opts ...Option) *Store {
	s := &Store{
		fsys:     fsys,
		logger:   slog.New(slog.DiscardHandler),
		frameMap: make(map[string]any),
		activeID: -1,
	}
	for _, opt := range opts {
		opt(s)
	}

	overlay := map[string]any{
		"global":  map[string]any{},
		"title":   map[string]any{"visible": false},
		"grid":    map[string]any{"visible": true},
		"border":  map[string]any{"visible": true},
		"ticks":   map[string]any{},
		"axes":    map[string]any{"visible": false},
		"numbers": map[string]any{"visible": true},
		"labels":  map[string]any{"visible": true},
		"beam":    map[string]any{"settingsForDisplay": map[string]any{}},
	}
	s.root = map[string]any{
		"fileBrowserStore": map[string]any{
			"startingDirectory": "/",
			"fileList": map[string]any{
				"directory":      "",
				"files":          []any{},
				"subdirectories": []any{},
			},
		},
		"overlayStore":      overlay,
		"frameMap":          s.frameMap,
		"spatialReference":  nil,
		"spectralReference": nil,
	}
	return s
}

// Handle runs an action and returns its JSON-encoded result, or nil when the
// action returns nothing. parameters must be a JSON array; empty means no
// arguments.
func (s *Store) Handle(storePath, action string, parameters []byte) (json.RawMessage, error) {
	args, err := decodeParameters(parameters)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, a := range args {
		if target, variable, ok := macroOf(a); ok {
			v, err := s.resolve(joinPath(target, variable))
			if err != nil {
				return nil, fmt.Errorf("evaluate macro (%q, %q): %w", target, variable, err)
			}
			args[i] = v
		}
	}

	s.logger.Debug("action", "path", storePath, "action", action, "args", len(args))

	result, err := s.dispatch(storePath, action, args)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	out, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return out, nil
}

func decodeParameters(parameters []byte) ([]any, error) {
	if len(bytes.TrimSpace(parameters)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(parameters))
	dec.UseNumber()
	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("Parameter array is not valid JSON: %w", err)
	}
	return args, nil
}

func macroOf(v any) (string, string, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return "", "", false
	}
	target, ok1 := m["macroTarget"].(string)
	variable, ok2 := m["macroVariable"].(string)
	return target, variable, ok1 && ok2
}

func joinPath(p, name string) string {
	if p == "" {
		return name
	}
	if name == "" {
		return p
	}
	return p + "." + name
}

func (s *Store) dispatch(storePath, action string, args []any) (any, error) {
	switch joinPath(storePath, action) {
	case "fetchParameter":
		if len(args) != 1 {
			return nil, fmt.Errorf("fetchParameter expects 1 argument, got %d", len(args))
		}
		return args[0], nil
	case "openFile":
		return s.openFile(args, false)
	case "appendFile":
		return s.openFile(args, true)
	case "closeFile":
		return nil, s.closeFile(args)
	case "setActiveFrame":
		id, err := s.frameArg(args, 0)
		if err != nil {
			return nil, err
		}
		s.activeID = id
		return nil, nil
	case "setSpatialReference":
		return nil, s.setReference("spatialReference", args)
	case "setSpectralReference":
		return nil, s.setReference("spectralReference", args)
	case "setSpatialMatchingEnabled":
		return nil, s.setMatching("spatialMatching", args)
	case "setSpectralMatchingEnabled":
		return nil, s.setMatching("spectralMatching", args)
	case "clearSpatialReference":
		s.root["spatialReference"] = nil
		return nil, nil
	case "clearSpectralReference":
		s.root["spectralReference"] = nil
		return nil, nil
	case "waitForImageData":
		return nil, nil
	case "getImageDataUrl":
		return renderDataURL()
	case "fileBrowserStore.getFileList":
		return nil, s.getFileList(args)
	case "fileBrowserStore.saveStartingDirectory":
		dir, err := stringArg(args, 0)
		if err != nil {
			return nil, err
		}
		s.fileBrowser()["startingDirectory"] = dir
		return nil, nil
	case "overlayStore.toggleLabels":
		labels, _ := s.root["overlayStore"].(map[string]any)["labels"].(map[string]any)
		visible, _ := labels["visible"].(bool)
		labels["visible"] = !visible
		return nil, nil
	}

	switch action {
	case "setChannels":
		return nil, s.setChannels(storePath, args)
	case "applyContours", "clearContours":
		target, err := s.resolveMap(storePath)
		if err != nil {
			return nil, err
		}
		target["contoursApplied"] = action == "applyContours"
		return nil, nil
	}

	if attr, ok := strings.CutPrefix(action, "set"); ok && attr != "" {
		return nil, s.setAttribute(storePath, lowerFirst(attr), args)
	}
	return nil, fmt.Errorf("%w %s", ErrUnknownAction, joinPath(storePath, action))
}

func (s *Store) fileBrowser() map[string]any {
	return s.root["fileBrowserStore"].(map[string]any)
}

// setAttribute implements the generic setFoo(value) action: a single
// argument is stored as is, several are stored as an array.
func (s *Store) setAttribute(storePath, attr string, args []any) error {
	target, err := s.resolveMap(storePath)
	if err != nil {
		return err
	}
	switch len(args) {
	case 0:
		return fmt.Errorf("set%s expects at least 1 argument", upperFirst(attr))
	case 1:
		target[attr] = args[0]
	default:
		target[attr] = args
	}
	return nil
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

func upperFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[n:]
}

// ---------------------------------------------------------------------------
// Path resolution
// ---------------------------------------------------------------------------

var segmentPattern = regexp.MustCompile(`^([^\[\]]*)((?:\[\d+\])*)$`)
var indexPattern = regexp.MustCompile(`\[(\d+)\]`)

// resolve evaluates a dot-separated path against the object tree. Segments
// may carry array or map indices, e.g. "frameMap[3]" or "regions[0]".
func (s *Store) resolve(p string) (any, error) {
	var node any = s.root
	if p == "" {
		return node, nil
	}
	for i, seg := range strings.Split(p, ".") {
		m := segmentPattern.FindStringSubmatch(seg)
		if m == nil {
			return nil, fmt.Errorf("invalid path segment %q", seg)
		}
		name, indices := m[1], indexPattern.FindAllStringSubmatch(m[2], -1)

		if name != "" {
			var err error
			if i == 0 {
				node, err = s.rootValue(name)
			} else {
				node, err = lookupKey(node, name)
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
		for _, idx := range indices {
			var err error
			node, err = lookupKey(node, idx[1])
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p, err)
			}
		}
	}
	return node, nil
}

func (s *Store) resolveMap(p string) (map[string]any, error) {
	v, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s is not an object store", p)
	}
	return m, nil
}

// rootValue answers the computed root properties before falling back to
// the tree.
func (s *Store) rootValue(name string) (any, error) {
	switch name {
	case "activeFrame":
		frame, ok := s.frameMap[strconv.Itoa(s.activeID)]
		if !ok {
			return nil, errors.New("no active frame")
		}
		return frame, nil
	case "frameNames":
		names := make([]any, 0, len(s.order))
		for i, id := range s.order {
			names = append(names, map[string]any{
				"value": id,
				"label": fmt.Sprintf("%d: %s", i, s.frameName(id)),
			})
		}
		return names, nil
	case "frames":
		frames := make([]any, 0, len(s.order))
		for _, id := range s.order {
			frames = append(frames, s.frameMap[strconv.Itoa(id)])
		}
		return frames, nil
	}
	return lookupKey(s.root, name)
}

func lookupKey(node any, key string) (any, error) {
	switch n := node.(type) {
	case map[string]any:
		v, ok := n[key]
		if !ok {
			return nil, fmt.Errorf("%q is undefined", key)
		}
		return v, nil
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil || i < 0 || i >= len(n) {
			return nil, fmt.Errorf("index %q out of range", key)
		}
		return n[i], nil
	}
	return nil, fmt.Errorf("cannot read %q of %T", key, node)
}

// ---------------------------------------------------------------------------
// Frames
// ---------------------------------------------------------------------------

func (s *Store) openFile(args []any, appendFile bool) (any, error) {
	dir, err := stringArg(args, 0)
	if err != nil {
		return nil, err
	}
	file, err := stringArg(args, 1)
	if err != nil {
		return nil, err
	}
	hdu := ""
	if len(args) > 2 {
		if hdu, err = stringArg(args, 2); err != nil {
			return nil, err
		}
	}

	rel := path.Clean(path.Join(strings.Trim(dir, "/"), file))
	info, err := fs.Stat(s.fsys, rel)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", rel, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("open %s: is a directory", rel)
	}

	if !appendFile {
		clear(s.frameMap)
		s.order = s.order[:0]
		s.root["spatialReference"] = nil
		s.root["spectralReference"] = nil
	}

	id := s.nextID
	s.nextID++
	img := s.catalog.Lookup(rel)
	header := make([]any, 0, len(img.Header))
	for _, h := range img.Header {
		header = append(header, map[string]any{"name": h.Name, "value": h.Value, "comment": h.Comment})
	}

	s.frameMap[strconv.Itoa(id)] = map[string]any{
		"frameInfo": map[string]any{
			"fileId":    id,
			"directory": dir,
			"hdu":       hdu,
			"fileInfo":  map[string]any{"name": file},
			"fileInfoExtended": map[string]any{
				"width":         img.Width,
				"height":        img.Height,
				"depth":         img.Depth,
				"stokes":        img.Stokes,
				"dimensions":    img.Dimensions,
				"headerEntries": header,
			},
		},
		"requiredChannel": 0,
		"requiredStokes":  0,
		"renderConfig":    map[string]any{"colorMap": "inferno", "visible": true},
		"contourConfig":   map[string]any{"visible": true},
		"regionSet": map[string]any{
			"regions": []any{map[string]any{"controlPoints": []any{}}},
		},
	}
	s.order = append(s.order, id)
	s.activeID = id
	if s.root["spatialReference"] == nil {
		s.root["spatialReference"] = id
	}
	if s.root["spectralReference"] == nil && img.Depth > 1 {
		s.root["spectralReference"] = id
	}

	s.logger.Info("opened image", "file_id", id, "file", rel, "append", appendFile)
	return id, nil
}

func (s *Store) frameName(id int) string {
	frame, _ := s.frameMap[strconv.Itoa(id)].(map[string]any)
	info, _ := frame["frameInfo"].(map[string]any)
	fileInfo, _ := info["fileInfo"].(map[string]any)
	name, _ := fileInfo["name"].(string)
	return name
}

// frameArg returns the ID of the frame passed as argument i.
func (s *Store) frameArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("missing frame argument %d", i)
	}
	frame, ok := args[i].(map[string]any)
	if !ok {
		return 0, fmt.Errorf("argument %d is not a frame", i)
	}
	info, _ := frame["frameInfo"].(map[string]any)
	id, ok := info["fileId"].(int)
	if !ok {
		return 0, fmt.Errorf("argument %d is not a frame", i)
	}
	if _, ok := s.frameMap[strconv.Itoa(id)]; !ok {
		return 0, fmt.Errorf("frame %d is closed", id)
	}
	return id, nil
}

func (s *Store) closeFile(args []any) error {
	id, err := s.frameArg(args, 0)
	if err != nil {
		return err
	}
	delete(s.frameMap, strconv.Itoa(id))
	s.order = slices.DeleteFunc(s.order, func(v int) bool { return v == id })
	for _, ref := range []string{"spatialReference", "spectralReference"} {
		if s.root[ref] == id {
			s.root[ref] = nil
		}
	}
	if s.activeID == id {
		s.activeID = -1
		if n := len(s.order); n > 0 {
			s.activeID = s.order[n-1]
		}
	}
	return nil
}

func (s *Store) setReference(key string, args []any) error {
	id, err := s.frameArg(args, 0)
	if err != nil {
		return err
	}
	s.root[key] = id
	return nil
}

func (s *Store) setMatching(key string, args []any) error {
	id, err := s.frameArg(args, 0)
	if err != nil {
		return err
	}
	state, ok := boolArg(args, 1)
	if !ok {
		return fmt.Errorf("%s expects a boolean", key)
	}
	s.frameMap[strconv.Itoa(id)].(map[string]any)[key] = state
	return nil
}

func (s *Store) setChannels(storePath string, args []any) error {
	frame, err := s.resolveMap(storePath)
	if err != nil {
		return err
	}
	if len(args) < 2 {
		return errors.New("setChannels expects channel and stokes")
	}
	channel, err := intArg(args[0])
	if err != nil {
		return err
	}
	stokes, err := intArg(args[1])
	if err != nil {
		return err
	}
	ext, _ := frame["frameInfo"].(map[string]any)["fileInfoExtended"].(map[string]any)
	if depth, _ := ext["depth"].(int); channel < 0 || channel >= depth {
		return fmt.Errorf("channel %d out of range [0, %d)", channel, depth)
	}
	if n, _ := ext["stokes"].(int); stokes < 0 || stokes >= n {
		return fmt.Errorf("stokes %d out of range [0, %d)", stokes, n)
	}
	frame["requiredChannel"] = channel
	frame["requiredStokes"] = stokes
	return nil
}

// ---------------------------------------------------------------------------
// File browser
// ---------------------------------------------------------------------------

// getFileList lists a directory into fileBrowserStore.fileList. A missing
// directory leaves the previous listing in place.
func (s *Store) getFileList(args []any) error {
	dir, err := stringArg(args, 0)
	if err != nil {
		return err
	}
	clean := strings.Trim(path.Clean("/"+dir), "/")
	fsDir := clean
	if fsDir == "" {
		fsDir = "."
	}

	entries, err := fs.ReadDir(s.fsys, fsDir)
	if err != nil {
		s.logger.Warn("file list unavailable", "directory", dir, "error", err)
		return nil
	}
	files, subdirs := []any{}, []any{}
	for _, e := range entries {
		entry := map[string]any{"name": e.Name()}
		if e.IsDir() {
			subdirs = append(subdirs, entry)
		} else {
			files = append(files, entry)
		}
	}
	s.fileBrowser()["fileList"] = map[string]any{
		"directory":      clean,
		"files":          files,
		"subdirectories": subdirs,
	}
	return nil
}

// ---------------------------------------------------------------------------
// Rendering
// ---------------------------------------------------------------------------

func renderDataURL() (string, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 1, 1))); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// ---------------------------------------------------------------------------
// Argument helpers
// ---------------------------------------------------------------------------

func stringArg(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("argument %d is %T, not a string", i, args[i])
	}
	return s, nil
}

func boolArg(args []any, i int) (bool, bool) {
	if i >= len(args) {
		return false, false
	}
	b, ok := args[i].(bool)
	return b, ok
}

func intArg(v any) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, fmt.Errorf("%s is not an integer", n)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("%v is not an integer", v)
}
