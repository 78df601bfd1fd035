package annotation

import (
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

type Label string

const (
	LabelPump           Label = "Pump"
	LabelValve          Label = "Valve"
	LabelMotor          Label = "Motor"
	LabelTank           Label = "Tank"
	LabelVessel         Label = "Vessel"
	LabelPipe           Label = "Pipe"
	LabelSensor         Label = "Sensor"
	LabelInstrument     Label = "Instrument"
	LabelCircuitBreaker Label = "Circuit Breaker"
	LabelTransformer    Label = "Transformer"
	LabelBusbar         Label = "Busbar"
	LabelSwitch         Label = "Switch"
	LabelRelay          Label = "Relay"
	LabelOther          Label = "Other"
)

var labels = []Label{
	LabelPump, LabelValve, LabelMotor, LabelTank, LabelVessel, LabelPipe, LabelSensor,
	LabelInstrument, LabelCircuitBreaker, LabelTransformer, LabelBusbar, LabelSwitch,
	LabelRelay, LabelOther,
}

// Labels returns the closed label set in display order.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// labelAliases maps lowercase singular spellings to labels.
var labelAliases = map[string]Label{
	"breaker":      LabelCircuitBreaker,
	"circuit":      LabelCircuitBreaker,
	"cb":           LabelCircuitBreaker,
	"bus bar":      LabelBusbar,
	"bus":          LabelBusbar,
	"disconnector": LabelSwitch,
}

// ParseLabel maps free text (any case, singular or plural) onto the closed
// label set. Anything unrecognised becomes LabelOther.
func ParseLabel(s string) Label {
	key := strings.ToLower(strings.Join(strings.Fields(s), " "))
	if key == "" {
		return LabelOther
	}
	for _, candidate := range []string{key, singular(key)} {
		for _, l := range labels {
			if strings.ToLower(string(l)) == candidate {
				return l
			}
		}
		if l, ok := labelAliases[candidate]; ok {
			return l
		}
	}
	return LabelOther
}

func singular(s string) string {
	switch {
	case strings.HasSuffix(s, "ches"), strings.HasSuffix(s, "shes"), strings.HasSuffix(s, "sses"):
		return strings.TrimSuffix(s, "es")
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return strings.TrimSuffix(s, "s")
	}
	return s
}

type Color string

const (
	ColorRed    Color = "#FF0000"
	ColorGreen  Color = "#00FF00"
	ColorBlue   Color = "#0000FF"
	ColorYellow Color = "#FFFF00"
	ColorOrange Color = "#FFA500"
	ColorPurple Color = "#800080"

	DefaultColor = ColorRed
)

var palette = []Color{ColorRed, ColorGreen, ColorBlue, ColorYellow, ColorOrange, ColorPurple}

var colorNames = map[string]Color{
	"red":    ColorRed,
	"green":  ColorGreen,
	"blue":   ColorBlue,
	"yellow": ColorYellow,
	"orange": ColorOrange,
	"purple": ColorPurple,
}

// Palette returns the six display colors.
func Palette() []Color {
	out := make([]Color, len(palette))
	copy(out, palette)
	return out
}

// ParseColor maps a color name or hex string onto the palette. Off-palette
// hex values snap to the perceptually nearest entry; unparseable input
// yields DefaultColor.
func ParseColor(s string) Color {
	s = strings.TrimSpace(s)
	if c, ok := colorNames[strings.ToLower(s)]; ok {
		return c
	}
	if s != "" && !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	parsed, err := colorful.Hex(strings.ToLower(s))
	if err != nil {
		return DefaultColor
	}
	best, bestDist := DefaultColor, -1.0
	for _, c := range palette {
		ref, _ := colorful.Hex(strings.ToLower(string(c)))
		d := parsed.DistanceLab(ref)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// RGBA returns the 8-bit channels of a palette color.
func (c Color) RGBA() (r, g, b, a uint8) {
	parsed, err := colorful.Hex(strings.ToLower(string(c)))
	if err != nil {
		parsed, _ = colorful.Hex(strings.ToLower(string(DefaultColor)))
	}
	r, g, b = parsed.RGB255()
	return r, g, b, 255
}
