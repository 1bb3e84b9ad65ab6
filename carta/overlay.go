package carta

import (
	"context"
	"fmt"
)

var (
	coordinateSystemParam = Constant("carta.CoordinateSystem", coordinateSystems)
	labelTypeParam        = Constant("carta.LabelType", labelTypes)
	beamTypeParam         = Constant("carta.BeamType", beamTypes)
	paletteColorParam     = Constant("carta.PaletteColor", paletteColors)
	overlayParam          = Constant("carta.Overlay", overlays)
	fontComponentParam    = OneOf(OverlayTitle, OverlayNumbers, OverlayLabels)
)

// SetViewArea sets the dimensions of the view area, in pixels divided by
// the browser's pixel ratio.
func (s *Session) SetViewArea(ctx context.Context, width, height float64) error {
	if err := validateArgs([]Parameter{Number(), Number()}, width, height); err != nil {
		return err
	}
	return s.CallAction(ctx, "overlayStore.setViewDimension", width, height)
}

// SetCoordinateSystem sets the overlay coordinate system.
func (s *Session) SetCoordinateSystem(ctx context.Context, system CoordinateSystem) error {
	if err := validateArgs([]Parameter{coordinateSystemParam}, system); err != nil {
		return err
	}
	return s.CallAction(ctx, "overlayStore.global.setSystem", system)
}

// SetLabelType sets the overlay label type.
func (s *Session) SetLabelType(ctx context.Context, labelType LabelType) error {
	if err := validateArgs([]Parameter{labelTypeParam}, labelType); err != nil {
		return err
	}
	return s.CallAction(ctx, "overlayStore.global.setLabelType", labelType)
}

// SetText sets a custom title and axis labels. Empty strings leave the
// corresponding text unchanged.
func (s *Session) SetText(ctx context.Context, title, labelX, labelY string) error {
	if title != "" {
		if err := s.CallAction(ctx, "overlayStore.title.setCustomTitleString", title); err != nil {
			return err
		}
		if err := s.CallAction(ctx, "overlayStore.title.setCustomText", true); err != nil {
			return err
		}
	}
	if labelX != "" {
		if err := s.CallAction(ctx, "overlayStore.labels.setCustomLabelX", labelX); err != nil {
			return err
		}
	}
	if labelY != "" {
		if err := s.CallAction(ctx, "overlayStore.labels.setCustomLabelY", labelY); err != nil {
			return err
		}
	}
	if labelX != "" || labelY != "" {
		return s.CallAction(ctx, "overlayStore.labels.setCustomText", true)
	}
	return nil
}

// ClearText clears the custom title and axis label text.
func (s *Session) ClearText(ctx context.Context) error {
	if err := s.CallAction(ctx, "overlayStore.title.setCustomText", false); err != nil {
		return err
	}
	return s.CallAction(ctx, "overlayStore.labels.setCustomText", false)
}

// SetFont sets the font and/or font size of the title, numbers or labels.
// An empty font or nil size leaves that setting unchanged.
func (s *Session) SetFont(ctx context.Context, component Overlay, font string, size *float64) error {
	if err := validateArgs([]Parameter{fontComponentParam, String("", false), NoneOr(Number())}, component, font, size); err != nil {
		return err
	}
	if font != "" {
		if err := s.CallAction(ctx, fmt.Sprintf("overlayStore.%s.setFont", component), font); err != nil {
			return err
		}
	}
	if size != nil {
		return s.CallAction(ctx, fmt.Sprintf("overlayStore.%s.setFontSize", component), *size)
	}
	return nil
}

// BeamSettings holds optional beam properties. Zero values are left unchanged.
type BeamSettings struct {
	Type   BeamType
	Width  *float64
	ShiftX *float64
	ShiftY *float64
}

// SetBeam sets the beam properties.
func (s *Session) SetBeam(ctx context.Context, beam BeamSettings) error {
	if beam.Type != "" {
		if err := validateArgs([]Parameter{beamTypeParam}, beam.Type); err != nil {
			return err
		}
	}
	prefix := "overlayStore." + string(OverlayBeam) + "."
	if beam.Type != "" {
		if err := s.CallAction(ctx, prefix+"setBeamType", beam.Type); err != nil {
			return err
		}
	}
	for _, setting := range []struct {
		action string
		value  *float64
	}{
		{"setWidth", beam.Width},
		{"setShiftX", beam.ShiftX},
		{"setShiftY", beam.ShiftY},
	} {
		if setting.value == nil {
			continue
		}
		if err := s.CallAction(ctx, prefix+setting.action, *setting.value); err != nil {
			return err
		}
	}
	return nil
}

// SetColor sets the color of an overlay component, or the global color.
// Components other than global and beam are switched to their custom color.
func (s *Session) SetColor(ctx context.Context, color PaletteColor, component Overlay) error {
	if err := validateArgs([]Parameter{paletteColorParam, overlayParam}, color, component); err != nil {
		return err
	}
	if err := s.CallAction(ctx, fmt.Sprintf("overlayStore.%s.setColor", component), color); err != nil {
		return err
	}
	if component != OverlayGlobal && component != OverlayBeam {
		return s.CallAction(ctx, fmt.Sprintf("overlayStore.%s.setCustomColor", component), true)
	}
	return nil
}

// ClearColor removes the custom color from an overlay component.
func (s *Session) ClearColor(ctx context.Context, component Overlay) error {
	if err := validateArgs([]Parameter{overlayParam}, component); err != nil {
		return err
	}
	if component == OverlayGlobal {
		return nil
	}
	return s.CallAction(ctx, fmt.Sprintf("overlayStore.%s.setCustomColor", component), false)
}

// SetVisible shows or hides an overlay component. Ticks cannot be toggled
// and the global component has no visibility; both are ignored.
func (s *Session) SetVisible(ctx context.Context, component Overlay, visible bool) error {
	if err := validateArgs([]Parameter{overlayParam, Boolean()}, component, visible); err != nil {
		return err
	}
	if component == OverlayTicks {
		s.logger.Warn("ticks cannot be shown or hidden")
		return nil
	}
	if component == OverlayGlobal {
		return nil
	}
	return s.CallAction(ctx, fmt.Sprintf("overlayStore.%s.setVisible", component), visible)
}

// Show shows an overlay component.
func (s *Session) Show(ctx context.Context, component Overlay) error {
	return s.SetVisible(ctx, component, true)
}

// Hide hides an overlay component.
func (s *Session) Hide(ctx context.Context, component Overlay) error {
	return s.SetVisible(ctx, component, false)
}

// ToggleLabels toggles the overlay labels.
func (s *Session) ToggleLabels(ctx context.Context) error {
	return s.CallAction(ctx, "overlayStore.toggleLabels")
}

// SetCursor moves the cursor of the active image.
func (s *Session) SetCursor(ctx context.Context, x, y float64) error {
	if err := validateArgs([]Parameter{Number(), Number()}, x, y); err != nil {
		return err
	}
	img, err := s.ActiveFrame(ctx)
	if err != nil {
		return err
	}
	return img.CallAction(ctx, "regionSet.regions[0].setControlPoint", 0, []float64{x, y})
}
