package carta

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/idia-astro/carta-scripting/internal/frontendsim"
	"github.com/idia-astro/carta-scripting/internal/rpc"
)

const testSessionID = 7

type testBackend struct {
	host     string
	port     int
	store    *frontendsim.Store
	servicer *frontendsim.Servicer
	calls    *recorder
}

// recorder logs every request that reaches the backend and can answer
// chosen actions with a fixed reply.
type recorder struct {
	next rpc.Servicer

	mu     sync.Mutex
	calls  []string
	canned map[string]*rpc.ActionReply // full action -> reply
}

func (r *recorder) CallAction(ctx context.Context, req *rpc.ActionRequest) (*rpc.ActionReply, error) {
	r.mu.Lock()
	r.calls = append(r.calls, req.FullAction()+" "+req.Parameters)
	reply := r.canned[req.FullAction()]
	r.mu.Unlock()
	if reply != nil {
		return reply, nil
	}
	return r.next.CallAction(ctx, req)
}

func (r *recorder) answer(action string, reply *rpc.ActionReply) {
	r.mu.Lock()
	r.canned[action] = reply
	r.mu.Unlock()
}

// take returns the recorded calls and clears the log.
func (r *recorder) take() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	calls := r.calls
	r.calls = nil
	return calls
}

// startBackend serves a simulated frontend over gRPC on a loopback port.
func startBackend(t *testing.T) testBackend {
	t.Helper()
	catalog, err := frontendsim.ParseCatalog([]byte(`
images:
  data/cube.fits:
    width: 512
    height: 256
    depth: 64
    stokes: 4
    header:
      - {name: BITPIX, value: "-32", comment: bits per pixel}
      - {name: OBJECT, value: M51}
`))
	require.NoError(t, err)

	fsys := fstest.MapFS{
		"m51.fits":         {Data: []byte("SIMPLE")},
		"data/cube.fits":   {Data: []byte("SIMPLE")},
		"data/other.hdf5":  {Data: []byte("HDF")},
		"data/nested/a.im": {Data: []byte("x")},
	}
	store := frontendsim.NewStore(fsys, frontendsim.WithCatalog(catalog))
	servicer := frontendsim.NewServicer(nil)
	servicer.AddSession(testSessionID, store)
	calls := &recorder{next: servicer, canned: make(map[string]*rpc.ActionReply)}

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := rpc.NewServer(calls)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	addr := lis.Addr().(*net.TCPAddr)
	return testBackend{host: "127.0.0.1", port: addr.Port, store: store, servicer: servicer, calls: calls}
}

func connect(t *testing.T, b testBackend, id uint32, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithTimeout(5 * time.Second)}, opts...)
	s, err := Connect(b.host, b.port, id, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_String(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	assert.Equal(t, uint32(testSessionID), s.ID())
	assert.True(t, strings.HasPrefix(s.String(), "Session(session_id=7, uri=127.0.0.1:"))
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close(), "second close is a no-op")
}

func TestSession_UnknownSession(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, 99)

	err := s.CallAction(context.Background(), "overlayStore.global.setSystem", CoordinateSystemFK5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.ErrorIs(t, err, ErrScripting)
	assert.Contains(t, err.Error(), "session 99 not found")
}

func TestSession_ActionFailureMessage(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)

	err := s.CallAction(context.Background(), "overlayStore.explode", 1, "x")
	require.Error(t, err)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	assert.Equal(t, "overlayStore", actionErr.Path)
	assert.Equal(t, "explode", actionErr.Action)
	assert.True(t, strings.HasPrefix(err.Error(),
		`CARTA scripting action overlayStore.explode called with parameters [1,"x"] failed: `), err.Error())
}

func TestSession_ResponseExpected(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)

	_, err := s.Call(context.Background(), ActionCall{
		Path:             "overlayStore.global.setSystem",
		Args:             []any{CoordinateSystemICRS},
		ResponseExpected: true,
	})
	assert.ErrorIs(t, err, ErrBadResponse)
	assert.Contains(t, err.Error(), "expected a response, but did not receive one.")
}

func TestSession_FileBrowsing(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	pwd, err := s.Pwd(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/", pwd)

	items, err := s.Ls(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"data/", "m51.fits"}, items)

	require.NoError(t, s.Cd(ctx, "data"))
	pwd, err = s.Pwd(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data", pwd)

	items, err = s.Ls(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"cube.fits", "nested/", "other.hdf5"}, items)

	resolved, err := s.ResolveFilePath(ctx, "cube.fits")
	require.NoError(t, err)
	assert.Equal(t, "/data/cube.fits", resolved)

	resolved, err = s.ResolveFilePath(ctx, "/m51.fits")
	require.NoError(t, err)
	assert.Equal(t, "/m51.fits", resolved)
}

func TestSession_CdMissingDirectory(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	require.NoError(t, s.Cd(ctx, "/data"))
	err := s.Cd(ctx, "missing")
	assert.ErrorIs(t, err, ErrDirectoryChange)

	pwd, err := s.Pwd(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data", pwd)
}

func TestSession_OpenImage(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	require.NoError(t, s.Cd(ctx, "data"))
	img, err := s.OpenImage(ctx, "cube.fits", "")
	require.NoError(t, err)
	assert.Equal(t, 0, img.ID())
	assert.Equal(t, "cube.fits", img.FileName())

	pwd, err := s.Pwd(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data", pwd, "opening an image keeps the current directory")

	shape, err := img.Shape(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{4, 64, 256, 512}, shape)

	dir, err := img.Directory(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/data", dir)

	_, err = s.OpenImage(ctx, "missing.fits", "")
	assert.ErrorIs(t, err, ErrActionFailed)

	_, err = s.OpenImage(ctx, "cube.fits", "x1")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSession_ImageList(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	first, err := s.OpenImage(ctx, "/m51.fits", "")
	require.NoError(t, err)
	second, err := s.AppendImage(ctx, "/data/cube.fits", "0")
	require.NoError(t, err)

	images, err := s.ImageList(ctx)
	require.NoError(t, err)
	require.Len(t, images, 2)
	assert.Equal(t, "m51.fits", images[0].FileName())
	assert.Equal(t, second.ID(), images[1].ID())

	active, err := s.ActiveFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID(), active.ID())

	require.NoError(t, first.MakeActive(ctx))
	active, err = s.ActiveFrame(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID(), active.ID())

	require.NoError(t, second.MakeSpatialReference(ctx))
	require.NoError(t, first.SetSpatialMatching(ctx, true))

	require.NoError(t, first.Close(ctx))
	images, err = s.ImageList(ctx)
	require.NoError(t, err)
	require.Len(t, images, 1)
	assert.Equal(t, "cube.fits", images[0].FileName())
}

func TestImage_ChannelStokes(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	img, err := s.OpenImage(ctx, "/data/cube.fits", "")
	require.NoError(t, err)

	require.NoError(t, img.SetChannelStokes(ctx, 10, 2, true))
	require.NoError(t, img.SetChannel(ctx, 12, false))

	var stokes, channel int
	require.NoError(t, img.GetValue(ctx, "requiredStokes", &stokes))
	require.NoError(t, img.GetValue(ctx, "requiredChannel", &channel))
	assert.Equal(t, 2, stokes)
	assert.Equal(t, 12, channel)

	err = img.SetChannelStokes(ctx, 64, 0, false)
	assert.ErrorIs(t, err, ErrValidation)
	err = img.SetStokes(ctx, 4, false)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestImage_Style(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	img, err := s.OpenImage(ctx, "/m51.fits", "")
	require.NoError(t, err)

	require.NoError(t, img.SetColormap(ctx, ColormapViridis, true))
	var colormap string
	var inverted bool
	require.NoError(t, img.GetValue(ctx, "renderConfig.colorMap", &colormap))
	require.NoError(t, img.GetValue(ctx, "renderConfig.inverted", &inverted))
	assert.Equal(t, "viridis", colormap)
	assert.True(t, inverted)

	assert.ErrorIs(t, img.SetColormap(ctx, Colormap("rainbowish"), false), ErrValidation)

	require.NoError(t, img.SetScaling(ctx, ScalingGamma, ScalingOptions{Gamma: Float(1.5), Min: Float(-1), Max: Float(10)}))
	var gamma float64
	var scale []float64
	require.NoError(t, img.GetValue(ctx, "renderConfig.gamma", &gamma))
	require.NoError(t, img.GetValue(ctx, "renderConfig.customScale", &scale))
	assert.Equal(t, 1.5, gamma)
	assert.Equal(t, []float64{-1, 10}, scale)

	require.NoError(t, img.HideRaster(ctx))
	var visible bool
	require.NoError(t, img.GetValue(ctx, "renderConfig.visible", &visible))
	assert.False(t, visible)

	assert.ErrorIs(t, img.SetPercentileRank(ctx, 101), ErrValidation)
	require.NoError(t, img.SetPercentileRank(ctx, 99.5))
}

func TestImage_Contours(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	img, err := s.OpenImage(ctx, "/m51.fits", "")
	require.NoError(t, err)

	require.NoError(t, img.ConfigureContours(ctx, []float64{0.1, 0.5, 1}, SmoothingGaussianBlur, 4))
	require.NoError(t, img.SetContourColor(ctx, "#ff0000"))
	require.NoError(t, img.SetContourDash(ctx, ContourDashDashed, Float(2)))
	require.NoError(t, img.ApplyContours(ctx))

	var applied, colormapEnabled bool
	var thickness float64
	require.NoError(t, img.GetValue(ctx, "contoursApplied", &applied))
	require.NoError(t, img.GetValue(ctx, "contourConfig.colormapEnabled", &colormapEnabled))
	require.NoError(t, img.GetValue(ctx, "contourConfig.thickness", &thickness))
	assert.True(t, applied)
	assert.False(t, colormapEnabled)
	assert.Equal(t, 2.0, thickness)

	assert.ErrorIs(t, img.SetContourColor(ctx, "not a color"), ErrValidation)

	require.NoError(t, img.ClearContours(ctx))
	require.NoError(t, img.GetValue(ctx, "contoursApplied", &applied))
	assert.False(t, applied)
}

func TestSession_Overlay(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	require.NoError(t, s.SetCoordinateSystem(ctx, CoordinateSystemGalactic))
	var system string
	require.NoError(t, s.GetValue(ctx, "overlayStore.global.system", &system))
	assert.Equal(t, string(CoordinateSystemGalactic), system)

	require.NoError(t, s.SetText(ctx, "M51", "", "Dec"))
	var title, labelY string
	var customText bool
	require.NoError(t, s.GetValue(ctx, "overlayStore.title.customTitleString", &title))
	require.NoError(t, s.GetValue(ctx, "overlayStore.labels.customLabelY", &labelY))
	require.NoError(t, s.GetValue(ctx, "overlayStore.labels.customText", &customText))
	assert.Equal(t, "M51", title)
	assert.Equal(t, "Dec", labelY)
	assert.True(t, customText)

	require.NoError(t, s.SetColor(ctx, PaletteRed, OverlayGrid))
	var color int
	require.NoError(t, s.GetValue(ctx, "overlayStore.grid.color", &color))
	assert.Equal(t, int(PaletteRed), color)

	require.NoError(t, s.Hide(ctx, OverlayGrid))
	var visible bool
	require.NoError(t, s.GetValue(ctx, "overlayStore.grid.visible", &visible))
	assert.False(t, visible)

	require.NoError(t, s.ToggleLabels(ctx))
	require.NoError(t, s.GetValue(ctx, "overlayStore.labels.visible", &visible))
	assert.False(t, visible)

	assert.ErrorIs(t, s.SetCoordinateSystem(ctx, CoordinateSystem("B1950ish")), ErrValidation)
}

func TestSession_SetCursor(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	assert.Error(t, s.SetCursor(ctx, 1, 2), "no image is open")

	_, err := s.OpenImage(ctx, "/m51.fits", "")
	require.NoError(t, err)
	require.NoError(t, s.SetCursor(ctx, 10, 20))

	var point json.RawMessage
	require.NoError(t, s.GetValue(ctx, "activeFrame.regionSet.regions[0].controlPoint", &point))
	assert.JSONEq(t, `[0, [10, 20]]`, string(point))
}

func TestSession_RenderedView(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	data, err := s.RenderedViewData(ctx, "white")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\x89PNG"))

	_, err = s.RenderedViewData(ctx, "not a color")
	assert.ErrorIs(t, err, ErrValidation)

	file := filepath.Join(t.TempDir(), "view.png")
	require.NoError(t, s.SaveRenderedView(ctx, file, ""))
	saved, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, data, saved)
}

func TestSession_Tracing(t *testing.T) {
	b := startBackend(t)
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	s := connect(t, b, testSessionID, WithTracerProvider(tp))
	require.NoError(t, s.SetLabelType(context.Background(), LabelTypeExternal))
	assert.Error(t, s.CallAction(context.Background(), "overlayStore.explode"))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "carta.CallAction", spans[0].Name())
	assert.Equal(t, "Unset", spans[0].Status().Code.String())
	assert.Equal(t, "Error", spans[1].Status().Code.String())
}

func TestSession_ActionsSent(t *testing.T) {
	cases := []struct {
		name string
		run  func(ctx context.Context, s *Session, img *Image) error
		want []string
	}{
		{
			name: "linear scaling ignores alpha",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.SetScaling(ctx, ScalingLinear, ScalingOptions{Alpha: Float(1000), Gamma: Float(2)})
			},
			want: []string{"frameMap[0].renderConfig.setScaling [0]"},
		},
		{
			name: "log scaling sends alpha",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.SetScaling(ctx, ScalingLog, ScalingOptions{Alpha: Float(1000), Gamma: Float(2)})
			},
			want: []string{"frameMap[0].renderConfig.setScaling [1]", "frameMap[0].renderConfig.setAlpha [1000]"},
		},
		{
			name: "power scaling sends alpha",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.SetScaling(ctx, ScalingPower, ScalingOptions{Alpha: Float(3)})
			},
			want: []string{"frameMap[0].renderConfig.setScaling [4]", "frameMap[0].renderConfig.setAlpha [3]"},
		},
		{
			name: "custom scale needs both bounds",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.SetScaling(ctx, ScalingSqrt, ScalingOptions{Min: Float(-1)})
			},
			want: []string{"frameMap[0].renderConfig.setScaling [2]"},
		},
		{
			name: "ticks visibility is ignored",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.Hide(ctx, OverlayTicks)
			},
		},
		{
			name: "global visibility is ignored",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.Show(ctx, OverlayGlobal)
			},
		},
		{
			name: "axes visibility",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.Show(ctx, OverlayAxes)
			},
			want: []string{"overlayStore.axes.setVisible [true]"},
		},
		{
			name: "beam settings",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.SetBeam(ctx, BeamSettings{Type: BeamTypeSolid, Width: Float(2), ShiftY: Float(-1)})
			},
			want: []string{
				`overlayStore.beam.settingsForDisplay.setBeamType ["Solid"]`,
				"overlayStore.beam.settingsForDisplay.setWidth [2]",
				"overlayStore.beam.settingsForDisplay.setShiftY [-1]",
			},
		},
		{
			name: "font and size",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.SetFont(ctx, OverlayTitle, "Times", Float(12))
			},
			want: []string{`overlayStore.title.setFont ["Times"]`, "overlayStore.title.setFontSize [12]"},
		},
		{
			name: "font size only",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.SetFont(ctx, OverlayNumbers, "", Float(9))
			},
			want: []string{"overlayStore.numbers.setFontSize [9]"},
		},
		{
			name: "clear global color is ignored",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.ClearColor(ctx, OverlayGlobal)
			},
		},
		{
			name: "clear grid color",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.ClearColor(ctx, OverlayGrid)
			},
			want: []string{"overlayStore.grid.setCustomColor [false]"},
		},
		{
			name: "beam color has no custom flag",
			run: func(ctx context.Context, s *Session, _ *Image) error {
				return s.SetColor(ctx, PaletteRed, OverlayBeam)
			},
			want: []string{"overlayStore.beam.settingsForDisplay.setColor [2]"},
		},
		{
			name: "contour colormap is enabled",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.SetContourColormap(ctx, ColormapViridis, Float(0.5), nil)
			},
			want: []string{
				`frameMap[0].contourConfig.setColormap ["viridis"]`,
				"frameMap[0].contourConfig.setColormapEnabled [true]",
				"frameMap[0].contourConfig.setColormapBias [0.5]",
			},
		},
		{
			name: "cube histogram",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.UseCubeHistogram(ctx, false)
			},
			want: []string{"frameMap[0].renderConfig.setUseCubeHistogram [true]"},
		},
		{
			name: "cube histogram for contours",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.UseCubeHistogram(ctx, true)
			},
			want: []string{"frameMap[0].renderConfig.setUseCubeHistogramContours [true]"},
		},
		{
			name: "channel histogram for contours",
			run: func(ctx context.Context, _ *Session, img *Image) error {
				return img.UseChannelHistogram(ctx, true)
			},
			want: []string{"frameMap[0].renderConfig.setUseCubeHistogramContours [false]"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := startBackend(t)
			s := connect(t, b, testSessionID)
			ctx := context.Background()

			img, err := s.OpenImage(ctx, "/m51.fits", "")
			require.NoError(t, err)
			b.calls.take()

			require.NoError(t, tc.run(ctx, s, img))
			assert.Equal(t, tc.want, b.calls.take())
		})
	}
}

func TestSession_ValidationBeforeNetwork(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	img, err := s.OpenImage(ctx, "/data/cube.fits", "")
	require.NoError(t, err)
	b.calls.take()

	cases := map[string]func() error{
		"font component":    func() error { return s.SetFont(ctx, OverlayGrid, "Times", nil) },
		"beam type":         func() error { return s.SetBeam(ctx, BeamSettings{Type: BeamType("Dotted"), Width: Float(1)}) },
		"coordinate system": func() error { return s.SetCoordinateSystem(ctx, CoordinateSystem("B1950ish")) },
		"overlay":           func() error { return s.Show(ctx, Overlay("legend")) },
		"palette color":     func() error { return s.SetColor(ctx, PaletteColor(42), OverlayGrid) },
		"clear color":       func() error { return s.ClearColor(ctx, Overlay("legend")) },
		"colormap":          func() error { return img.SetColormap(ctx, Colormap("rainbowish"), false) },
		"scaling":           func() error { return img.SetScaling(ctx, Scaling(9), ScalingOptions{Alpha: Float(1)}) },
		"contour colormap":  func() error { return img.SetContourColormap(ctx, Colormap("nope"), nil, nil) },
		"percentile rank":   func() error { return img.SetPercentileRank(ctx, -1) },
		"hdu": func() error {
			_, err := s.OpenImage(ctx, "cube.fits", "x1")
			return err
		},
		"render background": func() error {
			_, err := s.RenderedViewData(ctx, "not a color")
			return err
		},
	}
	for name, run := range cases {
		assert.ErrorIs(t, run(), ErrValidation, name)
	}
	assert.Empty(t, b.calls.take(), "invalid arguments never reach the backend")
}

func TestSession_UndecodableResponse(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	b.calls.answer("fetchParameter", &rpc.ActionReply{Success: true, Response: "not json{"})

	_, err := s.Call(ctx, ActionCall{Path: "fetchParameter", Args: []any{1}, ResponseExpected: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBadResponse)
	assert.Contains(t, err.Error(), `Response string: "not json{"`)

	var actionErr *ActionError
	require.True(t, errors.As(err, &actionErr))
	var syntaxErr *json.SyntaxError
	assert.True(t, errors.As(actionErr, &syntaxErr))

	var system string
	assert.ErrorIs(t, s.GetValue(ctx, "overlayStore.global.system", &system), ErrBadResponse)
}

func TestImage_Header(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	img, err := s.OpenImage(ctx, "/data/cube.fits", "")
	require.NoError(t, err)
	b.calls.take()

	header, err := img.Header(ctx)
	require.NoError(t, err)
	require.Len(t, header, 2)
	assert.Equal(t, HeaderEntry{Name: "BITPIX", Value: "-32", Comment: "bits per pixel"}, header[0])
	assert.Equal(t, HeaderEntry{Name: "OBJECT", Value: "M51"}, header[1])

	_, err = img.Header(ctx)
	require.NoError(t, err)
	assert.Len(t, b.calls.take(), 1, "the header is fetched once")
}

func TestSession_RemovedSession(t *testing.T) {
	b := startBackend(t)
	s := connect(t, b, testSessionID)
	ctx := context.Background()

	require.NoError(t, s.ToggleLabels(ctx))

	b.servicer.RemoveSession(testSessionID)
	err := s.ToggleLabels(ctx)
	assert.ErrorIs(t, err, ErrActionFailed)
	assert.Contains(t, err.Error(), "session 7 not found")
}
