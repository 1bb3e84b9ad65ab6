package carta

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
)

var (
	colormapParam      = Constant("carta.Colormap", colormapOptions())
	scalingParam       = Constant("carta.Scaling", scalings)
	smoothingModeParam = Constant("carta.SmoothingMode", smoothingModes)
	contourDashParam   = Constant("carta.ContourDashMode", contourDashModes)
	optionalNumber     = NoneOr(Number())
)

// Image corresponds to an image open in a frontend session. Values such as
// the dimensions are fetched on first use and cached; everything else is a
// remote call.
type Image struct {
	session  *Session
	id       int
	fileName string

	basePath string
	frame    Macro

	mu    sync.Mutex
	cache map[string]json.RawMessage
}

func newImage(s *Session, id int, fileName string) *Image {
	basePath := fmt.Sprintf("frameMap[%d]", id)
	return &Image{
		session:  s,
		id:       id,
		fileName: fileName,
		basePath: basePath,
		frame:    NewMacro("", basePath),
		cache:    make(map[string]json.RawMessage),
	}
}

// ID returns the frontend image ID.
func (img *Image) ID() int { return img.id }

// FileName returns the name of the image file.
func (img *Image) FileName() string { return img.fileName }

// Session returns the session the image belongs to.
func (img *Image) Session() *Session { return img.session }

func (img *Image) String() string {
	return fmt.Sprintf("%d:%d:%s", img.session.ID(), img.id, img.fileName)
}

// CallAction calls an action on the image's frame store. path is relative
// to the frame.
func (img *Image) CallAction(ctx context.Context, path string, args ...any) error {
	return img.session.CallAction(ctx, img.basePath+"."+path, args...)
}

// GetValue fetches an attribute of the image's frame store.
func (img *Image) GetValue(ctx context.Context, path string, dst any) error {
	return img.session.GetValue(ctx, img.basePath+"."+path, dst)
}

func (img *Image) cachedValue(ctx context.Context, path string, dst any) error {
	img.mu.Lock()
	raw, ok := img.cache[path]
	img.mu.Unlock()

	if !ok {
		if err := img.GetValue(ctx, path, &raw); err != nil {
			return err
		}
		img.mu.Lock()
		img.cache[path] = raw
		img.mu.Unlock()
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: decode value of %s: %w", ErrBadResponse, path, err)
	}
	return nil
}

func (img *Image) cachedInt(ctx context.Context, path string) (int, error) {
	var v int
	err := img.cachedValue(ctx, path, &v)
	return v, err
}

// Directory returns the path to the directory containing the image.
func (img *Image) Directory(ctx context.Context) (string, error) {
	var dir string
	err := img.cachedValue(ctx, "frameInfo.directory", &dir)
	return dir, err
}

// HeaderEntry is a single FITS header entry.
type HeaderEntry struct {
	Name    string  `json:"name"`
	Value   string  `json:"value"`
	Comment string  `json:"comment,omitempty"`
	Type    int     `json:"entryType,omitempty"`
	Numeric float64 `json:"numericValue,omitempty"`
}

// Header returns the image header entries.
func (img *Image) Header(ctx context.Context) ([]HeaderEntry, error) {
	var header []HeaderEntry
	err := img.cachedValue(ctx, "frameInfo.fileInfoExtended.headerEntries", &header)
	return header, err
}

// Width returns the width of the image.
func (img *Image) Width(ctx context.Context) (int, error) {
	return img.cachedInt(ctx, "frameInfo.fileInfoExtended.width")
}

// Height returns the height of the image.
func (img *Image) Height(ctx context.Context) (int, error) {
	return img.cachedInt(ctx, "frameInfo.fileInfoExtended.height")
}

// Depth returns the number of channels.
func (img *Image) Depth(ctx context.Context) (int, error) {
	return img.cachedInt(ctx, "frameInfo.fileInfoExtended.depth")
}

// Stokes returns the number of Stokes parameters.
func (img *Image) Stokes(ctx context.Context) (int, error) {
	return img.cachedInt(ctx, "frameInfo.fileInfoExtended.stokes")
}

// NDim returns the number of image dimensions.
func (img *Image) NDim(ctx context.Context) (int, error) {
	return img.cachedInt(ctx, "frameInfo.fileInfoExtended.dimensions")
}

// Shape returns the image shape in numpy order: the reverse of width,
// height, depth and stokes, truncated to the number of dimensions.
func (img *Image) Shape(ctx context.Context) ([]int, error) {
	ndim, err := img.NDim(ctx)
	if err != nil {
		return nil, err
	}
	getters := []func(context.Context) (int, error){img.Width, img.Height, img.Depth, img.Stokes}
	ndim = min(max(ndim, 0), len(getters))

	shape := make([]int, 0, ndim)
	for _, get := range getters[:ndim] {
		v, err := get(ctx)
		if err != nil {
			return nil, err
		}
		shape = append(shape, v)
	}
	slices.Reverse(shape)
	return shape, nil
}

// MakeActive makes this the active image.
func (img *Image) MakeActive(ctx context.Context) error {
	return img.session.CallAction(ctx, "setActiveFrame", img.frame)
}

// MakeSpatialReference makes this image the spatial reference.
func (img *Image) MakeSpatialReference(ctx context.Context) error {
	return img.session.CallAction(ctx, "setSpatialReference", img.frame)
}

// SetSpatialMatching enables or disables spatial matching to the reference.
func (img *Image) SetSpatialMatching(ctx context.Context, state bool) error {
	return img.session.CallAction(ctx, "setSpatialMatchingEnabled", img.frame, state)
}

// MakeSpectralReference makes this image the spectral reference.
func (img *Image) MakeSpectralReference(ctx context.Context) error {
	return img.session.CallAction(ctx, "setSpectralReference", img.frame)
}

// SetSpectralMatching enables or disables spectral matching to the reference.
func (img *Image) SetSpectralMatching(ctx context.Context, state bool) error {
	return img.session.CallAction(ctx, "setSpectralMatchingEnabled", img.frame, state)
}

// SetChannelStokes sets the channel and Stokes parameter. recursive applies
// the change to matched images as well.
func (img *Image) SetChannelStokes(ctx context.Context, channel, stokes int, recursive bool) error {
	depth, err := img.Depth(ctx)
	if err != nil {
		return err
	}
	nStokes, err := img.Stokes(ctx)
	if err != nil {
		return err
	}
	params := []Parameter{Below(0, float64(depth)), Below(0, float64(nStokes)), Boolean()}
	if err := validateArgs(params, channel, stokes, recursive); err != nil {
		return err
	}
	return img.CallAction(ctx, "setChannels", channel, stokes, recursive)
}

// SetChannel sets the channel, keeping the current Stokes parameter.
func (img *Image) SetChannel(ctx context.Context, channel int, recursive bool) error {
	var stokes int
	if err := img.GetValue(ctx, "requiredStokes", &stokes); err != nil {
		return err
	}
	return img.SetChannelStokes(ctx, channel, stokes, recursive)
}

// SetStokes sets the Stokes parameter, keeping the current channel.
func (img *Image) SetStokes(ctx context.Context, stokes int, recursive bool) error {
	var channel int
	if err := img.GetValue(ctx, "requiredChannel", &channel); err != nil {
		return err
	}
	return img.SetChannelStokes(ctx, channel, stokes, recursive)
}

// SetCenter centers the view on the given image coordinates.
func (img *Image) SetCenter(ctx context.Context, x, y float64) error {
	return img.CallAction(ctx, "setCenter", x, y)
}

// SetZoom sets the zoom level. When absolute is false the zoom is relative
// to the image's pixel scale.
func (img *Image) SetZoom(ctx context.Context, zoom float64, absolute bool) error {
	if err := validateArgs([]Parameter{Number(), Boolean()}, zoom, absolute); err != nil {
		return err
	}
	return img.CallAction(ctx, "setZoom", zoom, absolute)
}

// SetColormap sets the raster colormap, optionally inverted.
func (img *Image) SetColormap(ctx context.Context, colormap Colormap, invert bool) error {
	if err := validateArgs([]Parameter{colormapParam, Boolean()}, colormap, invert); err != nil {
		return err
	}
	if err := img.CallAction(ctx, "renderConfig.setColorMap", colormap); err != nil {
		return err
	}
	return img.CallAction(ctx, "renderConfig.setInverted", invert)
}

// ScalingOptions holds the optional scaling parameters. Alpha applies to
// log and power scaling, Gamma to gamma scaling. Min and Max set a custom
// clip range only when both are given.
type ScalingOptions struct {
	Alpha *float64
	Gamma *float64
	Min   *float64
	Max   *float64
}

// SetScaling sets the colormap scaling function.
func (img *Image) SetScaling(ctx context.Context, scaling Scaling, opts ScalingOptions) error {
	params := []Parameter{scalingParam, optionalNumber, optionalNumber, optionalNumber, optionalNumber}
	if err := validateArgs(params, scaling, opts.Alpha, opts.Gamma, opts.Min, opts.Max); err != nil {
		return err
	}
	if err := img.CallAction(ctx, "renderConfig.setScaling", scaling); err != nil {
		return err
	}
	if (scaling == ScalingLog || scaling == ScalingPower) && opts.Alpha != nil {
		if err := img.CallAction(ctx, "renderConfig.setAlpha", *opts.Alpha); err != nil {
			return err
		}
	}
	if scaling == ScalingGamma && opts.Gamma != nil {
		if err := img.CallAction(ctx, "renderConfig.setGamma", *opts.Gamma); err != nil {
			return err
		}
	}
	if opts.Min != nil && opts.Max != nil {
		return img.CallAction(ctx, "renderConfig.setCustomScale", *opts.Min, *opts.Max)
	}
	return nil
}

// SetRasterVisible shows or hides the raster image.
func (img *Image) SetRasterVisible(ctx context.Context, state bool) error {
	return img.CallAction(ctx, "renderConfig.setVisible", state)
}

// ShowRaster shows the raster image.
func (img *Image) ShowRaster(ctx context.Context) error { return img.SetRasterVisible(ctx, true) }

// HideRaster hides the raster image.
func (img *Image) HideRaster(ctx context.Context) error { return img.SetRasterVisible(ctx, false) }

// ConfigureContours sets the contour levels and smoothing. The frontend
// defaults are SmoothingGaussianBlur with a factor of 4.
func (img *Image) ConfigureContours(ctx context.Context, levels []float64, mode SmoothingMode, factor int) error {
	params := []Parameter{IterableOf(Number()), smoothingModeParam, Number()}
	if err := validateArgs(params, levels, mode, factor); err != nil {
		return err
	}
	if levels == nil {
		levels = []float64{}
	}
	return img.CallAction(ctx, "contourConfig.setContourConfiguration", levels, mode, factor)
}

// SetContourDash sets the contour dash style and/or thickness. An empty
// mode or nil thickness leaves that setting unchanged.
func (img *Image) SetContourDash(ctx context.Context, mode ContourDashMode, thickness *float64) error {
	if mode != "" {
		if err := validateArgs([]Parameter{contourDashParam}, mode); err != nil {
			return err
		}
		if err := img.CallAction(ctx, "contourConfig.setDashMode", mode); err != nil {
			return err
		}
	}
	if thickness != nil {
		return img.CallAction(ctx, "contourConfig.setThickness", *thickness)
	}
	return nil
}

// SetContourColor sets a single contour color and disables the contour
// colormap.
func (img *Image) SetContourColor(ctx context.Context, color string) error {
	if err := validateArgs([]Parameter{colorParam}, color); err != nil {
		return err
	}
	if err := img.CallAction(ctx, "contourConfig.setColor", color); err != nil {
		return err
	}
	return img.CallAction(ctx, "contourConfig.setColormapEnabled", false)
}

// SetContourColormap enables a contour colormap with optional bias and
// contrast.
func (img *Image) SetContourColormap(ctx context.Context, colormap Colormap, bias, contrast *float64) error {
	params := []Parameter{colormapParam, optionalNumber, optionalNumber}
	if err := validateArgs(params, colormap, bias, contrast); err != nil {
		return err
	}
	if err := img.CallAction(ctx, "contourConfig.setColormap", colormap); err != nil {
		return err
	}
	if err := img.CallAction(ctx, "contourConfig.setColormapEnabled", true); err != nil {
		return err
	}
	if bias != nil {
		if err := img.CallAction(ctx, "contourConfig.setColormapBias", *bias); err != nil {
			return err
		}
	}
	if contrast != nil {
		return img.CallAction(ctx, "contourConfig.setColormapContrast", *contrast)
	}
	return nil
}

// ApplyContours applies the configured contours.
func (img *Image) ApplyContours(ctx context.Context) error {
	return img.CallAction(ctx, "applyContours")
}

// ClearContours removes the contours.
func (img *Image) ClearContours(ctx context.Context) error {
	return img.CallAction(ctx, "clearContours", true)
}

// SetContoursVisible shows or hides the contours.
func (img *Image) SetContoursVisible(ctx context.Context, state bool) error {
	return img.CallAction(ctx, "contourConfig.setVisible", state)
}

// ShowContours shows the contours.
func (img *Image) ShowContours(ctx context.Context) error { return img.SetContoursVisible(ctx, true) }

// HideContours hides the contours.
func (img *Image) HideContours(ctx context.Context) error { return img.SetContoursVisible(ctx, false) }

func histogramAction(contours bool) string {
	if contours {
		return "renderConfig.setUseCubeHistogramContours"
	}
	return "renderConfig.setUseCubeHistogram"
}

// UseCubeHistogram uses the cube histogram for the raster, or for the
// contours when contours is set.
func (img *Image) UseCubeHistogram(ctx context.Context, contours bool) error {
	return img.CallAction(ctx, histogramAction(contours), true)
}

// UseChannelHistogram uses the per-channel histogram.
func (img *Image) UseChannelHistogram(ctx context.Context, contours bool) error {
	return img.CallAction(ctx, histogramAction(contours), false)
}

// SetPercentileRank sets the clip percentile rank.
func (img *Image) SetPercentileRank(ctx context.Context, rank float64) error {
	if err := validateArgs([]Parameter{Between(0, 100)}, rank); err != nil {
		return err
	}
	return img.CallAction(ctx, "renderConfig.setPercentileRank", rank)
}

// Close closes the image in the frontend.
func (img *Image) Close(ctx context.Context) error {
	return img.session.CallAction(ctx, "closeFile", img.frame)
}
