// Package display maps headset events to the icons and labels shown by a
// display surface. Widgets do not draw anything themselves; they push frames
// to a Renderer.
package display

// Icon names. Surfaces resolve them to images of their own.
const (
	IconDisconnected = "disconnected"
	IconEmpty        = "empty"
	IconLow          = "low"
	IconHalf         = "half"
	IconHigh         = "high"
	IconFull         = "full"

	IconMuted   = "muted"
	IconUnmuted = "unmuted"
)

// BatteryIcon returns the battery icon for pct.
func BatteryIcon(pct int) string {
	switch {
	case pct < 5:
		return IconEmpty
	case pct < 45:
		return IconLow
	case pct < 55:
		return IconHalf
	case pct < 95:
		return IconHigh
	default:
		return IconFull
	}
}

// Frame is what a surface shows at one point in time.
type Frame struct {
	Icon  string `json:"icon"`
	Title string `json:"title"`
}

// Renderer draws frames. Render is called from the event delivery goroutine
// and must not block.
type Renderer interface {
	Render(f Frame)
}

// RendererFunc adapts a function to a Renderer.
type RendererFunc func(Frame)

func (f RendererFunc) Render(fr Frame) { f(fr) }
