package carta

import "strings"

// Colormap is a frontend colormap name.
type Colormap string

// Colormaps available in the frontend.
const (
	ColormapAccent       Colormap = "accent"
	ColormapAfmhot       Colormap = "afmhot"
	ColormapAutumn       Colormap = "autumn"
	ColormapBinary       Colormap = "binary"
	ColormapBlues        Colormap = "Blues"
	ColormapBone         Colormap = "bone"
	ColormapBrBG         Colormap = "BrBG"
	ColormapBrg          Colormap = "brg"
	ColormapBuGn         Colormap = "BuGn"
	ColormapBuPu         Colormap = "BuPu"
	ColormapBwr          Colormap = "bwr"
	ColormapCMRmap       Colormap = "CMRmap"
	ColormapCool         Colormap = "cool"
	ColormapCoolwarm     Colormap = "coolwarm"
	ColormapCopper       Colormap = "copper"
	ColormapCubehelix    Colormap = "cubehelix"
	ColormapDark2        Colormap = "dark2"
	ColormapFlag         Colormap = "flag"
	ColormapGistEarth    Colormap = "gist_earth"
	ColormapGistGray     Colormap = "gist_gray"
	ColormapGistHeat     Colormap = "gist_heat"
	ColormapGistNcar     Colormap = "gist_ncar"
	ColormapGistRainbow  Colormap = "gist_rainbow"
	ColormapGistStern    Colormap = "gist_stern"
	ColormapGistYarg     Colormap = "gist_yarg"
	ColormapGnBu         Colormap = "GnBu"
	ColormapGnuplot      Colormap = "gnuplot"
	ColormapGnuplot2     Colormap = "gnuplot2"
	ColormapGray         Colormap = "gray"
	ColormapGreens       Colormap = "greens"
	ColormapGreys        Colormap = "greys"
	ColormapHot          Colormap = "hot"
	ColormapHsv          Colormap = "hsv"
	ColormapInferno      Colormap = "inferno"
	ColormapJet          Colormap = "jet"
	ColormapMagma        Colormap = "magma"
	ColormapNipySpectral Colormap = "nipy_spectral"
	ColormapOcean        Colormap = "ocean"
	ColormapOrRd         Colormap = "OrRd"
	ColormapOranges      Colormap = "oranges"
	ColormapPRGn         Colormap = "PRGn"
	ColormapPaired       Colormap = "paired"
	ColormapPastel1      Colormap = "pastel1"
	ColormapPastel2      Colormap = "pastel2"
	ColormapPiYG         Colormap = "PiYG"
	ColormapPink         Colormap = "pink"
	ColormapPlasma       Colormap = "plasma"
	ColormapPrism        Colormap = "prism"
	ColormapPuBu         Colormap = "PuBu"
	ColormapPuBuGn       Colormap = "PuBuGn"
	ColormapPuOr         Colormap = "PuOr"
	ColormapPuRd         Colormap = "PuRd"
	ColormapPurples      Colormap = "purples"
	ColormapRainbow      Colormap = "rainbow"
	ColormapRdBu         Colormap = "RdBu"
	ColormapRdGy         Colormap = "RdGy"
	ColormapRdPu         Colormap = "RdPu"
	ColormapRdYlBu       Colormap = "RdYlBu"
	ColormapRdYlGn       Colormap = "RdYlGn"
	ColormapReds         Colormap = "reds"
	ColormapSeismic      Colormap = "seismic"
	ColormapSet1         Colormap = "set1"
	ColormapSet2         Colormap = "set2"
	ColormapSet3         Colormap = "set3"
	ColormapSpectral     Colormap = "spectral"
	ColormapSpring       Colormap = "spring"
	ColormapSummer       Colormap = "summer"
	ColormapTab10        Colormap = "tab10"
	ColormapTab20        Colormap = "tab20"
	ColormapTab20b       Colormap = "tab20b"
	ColormapTab20c       Colormap = "tab20c"
	ColormapTerrain      Colormap = "terrain"
	ColormapViridis      Colormap = "viridis"
	ColormapWinter       Colormap = "winter"
	ColormapWistia       Colormap = "Wistia"
	ColormapYlGn         Colormap = "YlGn"
	ColormapYlGnBu       Colormap = "YlGnBu"
	ColormapYlOrBr       Colormap = "YlOrBr"
	ColormapYlOrRd       Colormap = "YlOrRd"
)

// Colormaps lists every known colormap.
var Colormaps = []Colormap{
	ColormapAccent, ColormapAfmhot, ColormapAutumn, ColormapBinary, ColormapBlues,
	ColormapBone, ColormapBrBG, ColormapBrg, ColormapBuGn, ColormapBuPu, ColormapBwr,
	ColormapCMRmap, ColormapCool, ColormapCoolwarm, ColormapCopper, ColormapCubehelix,
	ColormapDark2, ColormapFlag, ColormapGistEarth, ColormapGistGray, ColormapGistHeat,
	ColormapGistNcar, ColormapGistRainbow, ColormapGistStern, ColormapGistYarg,
	ColormapGnBu, ColormapGnuplot, ColormapGnuplot2, ColormapGray, ColormapGreens,
	ColormapGreys, ColormapHot, ColormapHsv, ColormapInferno, ColormapJet, ColormapMagma,
	ColormapNipySpectral, ColormapOcean, ColormapOrRd, ColormapOranges, ColormapPRGn,
	ColormapPaired, ColormapPastel1, ColormapPastel2, ColormapPiYG, ColormapPink,
	ColormapPlasma, ColormapPrism, ColormapPuBu, ColormapPuBuGn, ColormapPuOr,
	ColormapPuRd, ColormapPurples, ColormapRainbow, ColormapRdBu, ColormapRdGy,
	ColormapRdPu, ColormapRdYlBu, ColormapRdYlGn, ColormapReds, ColormapSeismic,
	ColormapSet1, ColormapSet2, ColormapSet3, ColormapSpectral, ColormapSpring,
	ColormapSummer, ColormapTab10, ColormapTab20, ColormapTab20b, ColormapTab20c,
	ColormapTerrain, ColormapViridis, ColormapWinter, ColormapWistia, ColormapYlGn,
	ColormapYlGnBu, ColormapYlOrBr, ColormapYlOrRd,
}

// ParseColormap looks a colormap up by name, ignoring case.
func ParseColormap(name string) (Colormap, bool) {
	for _, c := range Colormaps {
		if strings.EqualFold(string(c), name) {
			return c, true
		}
	}
	return "", false
}

// Scaling is a colormap scaling type.
type Scaling int

const (
	ScalingLinear Scaling = iota
	ScalingLog
	ScalingSqrt
	ScalingSquare
	ScalingPower
	ScalingGamma
)

// CoordinateSystem is an overlay coordinate system.
type CoordinateSystem string

const (
	CoordinateSystemAuto     CoordinateSystem = "Auto"
	CoordinateSystemEcliptic CoordinateSystem = "Ecliptic"
	CoordinateSystemFK4      CoordinateSystem = "FK4"
	CoordinateSystemFK5      CoordinateSystem = "FK5"
	CoordinateSystemGalactic CoordinateSystem = "Galactic"
	CoordinateSystemICRS     CoordinateSystem = "ICRS"
)

// LabelType places overlay labels inside or outside the image.
type LabelType string

const (
	LabelTypeInternal LabelType = "Internal"
	LabelTypeExternal LabelType = "External"
)

// BeamType is the beam drawing style.
type BeamType string

const (
	BeamTypeOpen  BeamType = "Open"
	BeamTypeSolid BeamType = "Solid"
)

// PaletteColor is a palette color for overlay elements.
type PaletteColor int

const (
	PaletteBlack PaletteColor = iota
	PaletteWhite
	PaletteRed
	PaletteGreen
	PaletteBlue
	PaletteTurquoise
	PaletteViolet
	PaletteGold
	PaletteGray
)

// Overlay is an overlay element. Values are store paths relative to the
// overlay store.
type Overlay string

const (
	OverlayGlobal  Overlay = "global"
	OverlayTitle   Overlay = "title"
	OverlayGrid    Overlay = "grid"
	OverlayBorder  Overlay = "border"
	OverlayTicks   Overlay = "ticks"
	OverlayAxes    Overlay = "axes"
	OverlayNumbers Overlay = "numbers"
	OverlayLabels  Overlay = "labels"
	// OverlayBeam has an extra level of indirection.
	OverlayBeam Overlay = "beam.settingsForDisplay"
)

// SmoothingMode is a contour smoothing mode.
type SmoothingMode int

const (
	SmoothingNone SmoothingMode = iota
	SmoothingBlockAverage
	SmoothingGaussianBlur
)

// ContourDashMode is a contour dash style.
type ContourDashMode string

const (
	ContourDashNone         ContourDashMode = "None"
	ContourDashDashed       ContourDashMode = "Dashed"
	ContourDashNegativeOnly ContourDashMode = "NegativeOnly"
)

var (
	scalings          = []any{ScalingLinear, ScalingLog, ScalingSqrt, ScalingSquare, ScalingPower, ScalingGamma}
	coordinateSystems = []any{CoordinateSystemAuto, CoordinateSystemEcliptic, CoordinateSystemFK4, CoordinateSystemFK5, CoordinateSystemGalactic, CoordinateSystemICRS}
	labelTypes        = []any{LabelTypeInternal, LabelTypeExternal}
	beamTypes         = []any{BeamTypeOpen, BeamTypeSolid}
	paletteColors     = []any{PaletteBlack, PaletteWhite, PaletteRed, PaletteGreen, PaletteBlue, PaletteTurquoise, PaletteViolet, PaletteGold, PaletteGray}
	overlays          = []any{OverlayGlobal, OverlayTitle, OverlayGrid, OverlayBorder, OverlayTicks, OverlayAxes, OverlayNumbers, OverlayLabels, OverlayBeam}
	smoothingModes    = []any{SmoothingNone, SmoothingBlockAverage, SmoothingGaussianBlur}
	contourDashModes  = []any{ContourDashNone, ContourDashDashed, ContourDashNegativeOnly}
)

func colormapOptions() []any {
	out := make([]any, len(Colormaps))
	for i, c := range Colormaps {
		out[i] = c
	}
	return out
}
