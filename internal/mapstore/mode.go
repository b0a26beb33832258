package mapstore

import (
	"errors"
	"fmt"
	"log/slog"
)

// Mode is the active input mode of the single surface.
type Mode string

const (
	ModeNone    Mode = "none"
	ModePan     Mode = "pan"
	ModeZoomIn  Mode = "zoom_in"
	ModeZoomOut Mode = "zoom_out"
	ModeDraw    Mode = "draw"
)

// ErrUnknownMode is returned by SetMode for names outside Mode.
var ErrUnknownMode = errors.New("unknown interaction mode")

// ParseMode validates s.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeNone, ModePan, ModeZoomIn, ModeZoomOut, ModeDraw:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Indicator is the toolbar hint for a mode.
type Indicator struct {
	Icon  string `json:"icon"`
	Color string `json:"color"`
	Label string `json:"label"`
}

// ModeController switches between mutually exclusive input handlers.
type ModeController struct {
	mode   Mode
	reg    *Registry
	dig    *Digitizer
	logger *slog.Logger
}

// NewModeController starts in ModeNone.
func NewModeController(reg *Registry, dig *Digitizer, logger *slog.Logger) *ModeController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ModeController{mode: ModeNone, reg: reg, dig: dig, logger: logger}
}

// Mode returns the current mode.
func (m *ModeController) Mode() Mode { return m.mode }

// SetMode tears down every handler of the previous mode and installs the one
// for target.
func (m *ModeController) SetMode(target Mode) error {
	if _, err := ParseMode(string(target)); err != nil {
		return err
	}
	if target == m.mode {
		return nil
	}
	s := m.reg.Surface(SurfaceSingle)
	if s == nil {
		m.logger.Info("mode change before the map is ready", slog.String("mode", string(target)))
		return nil
	}

	m.dig.StopDraw()
	s.Remove(InteractionDragPan)
	s.Remove(InteractionDragZoomIn)
	s.Remove(InteractionDragZoomOut)

	switch target {
	case ModePan:
		s.Install(InteractionDragPan)
	case ModeZoomIn:
		s.Install(InteractionDragZoomIn)
	case ModeZoomOut:
		s.Install(InteractionDragZoomOut)
	case ModeDraw:
		m.dig.StartDraw()
	}

	m.logger.Debug("interaction mode set", slog.String("from", string(m.mode)), slog.String("to", string(target)))
	m.mode = target
	return nil
}

// SetDrawingStyle changes the drawing style without leaving the mode.
func (m *ModeController) SetDrawingStyle(style DrawStyle) {
	m.dig.SetStyle(style)
}

// ToggleDrawingStyle flips the drawing style.
func (m *ModeController) ToggleDrawingStyle() DrawStyle {
	return m.dig.ToggleStyle()
}

// Indicator describes the current mode for the toolbar.
func (m *ModeController) Indicator() Indicator {
	switch m.mode {
	case ModeDraw:
		return Indicator{Icon: "edit", Color: "primary", Label: "Draw"}
	case ModePan:
		return Indicator{Icon: "pan_tool", Color: "secondary", Label: "Pan"}
	case ModeZoomIn, ModeZoomOut:
		return Indicator{Icon: "crop_free", Color: "accent", Label: "Zoom Box"}
	default:
		return Indicator{Icon: "help", Color: "grey", Label: "Unknown"}
	}
}
