package canvas

import (
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"gwi.com/drawing-analyzer/internal/annotation"
)

// HandleRadius is the grip hit radius in screen pixels.
const HandleRadius = 6.0

type Mode int

const (
	ModeIdle Mode = iota
	ModeDrawing
	ModeDragging
	ModeResizing
	ModeTransforming
)

func (m Mode) String() string {
	switch m {
	case ModeIdle:
		return "idle"
	case ModeDrawing:
		return "drawing"
	case ModeDragging:
		return "dragging"
	case ModeResizing:
		return "resizing"
	case ModeTransforming:
		return "transforming"
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

type EventKind int

const (
	PointerDown EventKind = iota + 1
	PointerMove
	PointerUp
	Wheel
	KeyDown
)

var eventKinds = map[string]EventKind{
	"pointerdown": PointerDown,
	"pointermove": PointerMove,
	"pointerup":   PointerUp,
	"wheel":       Wheel,
	"keydown":     KeyDown,
}

// ParseEventKind accepts DOM-style event names ("pointerdown", "wheel", ...).
func ParseEventKind(s string) (EventKind, error) {
	if k, ok := eventKinds[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unknown canvas event %q", s)
}

type Button int

const (
	ButtonPrimary Button = iota
	ButtonMiddle
	ButtonSecondary
)

// Event is a raw input event. X and Y are screen-space coordinates.
type Event struct {
	Kind   EventKind
	X, Y   float64
	Button Button
	// Pan marks a pointer-down as a canvas drag (pan modifier held).
	Pan    bool
	DeltaY float64
	Key    string
}

func (e Event) screen() annotation.Point { return annotation.Point{X: e.X, Y: e.Y} }

type EffectKind int

const (
	EffectNone EffectKind = iota
	EffectPreview
	EffectBoxAdded
	EffectBoxUpdated
	EffectBoxDeleted
	EffectSelected
	EffectDiscarded
	EffectViewport
)

func (k EffectKind) String() string {
	return [...]string{"none", "preview", "box_added", "box_updated", "box_deleted", "selected", "discarded", "viewport"}[k]
}

// Effect describes what handling an event changed, for the renderer.
type Effect struct {
	Kind    EffectKind
	BoxID   string
	Preview *annotation.BoundingBox
}

// Annotations is the part of the annotation store the controller edits.
type Annotations interface {
	Snapshot() annotation.State
	AddBox(b annotation.BoundingBox) error
	UpdateBox(b annotation.BoundingBox) error
	DeleteBox(id string)
	SelectBox(id string) error
}

// gesture holds the transient data of the pointer interaction in progress.
type gesture struct {
	anchor    annotation.Point // image-space pointer-down position
	start     annotation.BoundingBox
	current   annotation.BoundingBox
	handle    annotation.Handle
	lastPan   annotation.Point // screen-space, for panning
	resume    Mode
	resumeBox *gesture
}

// Controller converts pointer, wheel and key events into edits on the
// annotation store. Its viewport is session-scoped and never persisted.
type Controller struct {
	mu       sync.Mutex
	store    Annotations
	log      *zap.Logger
	mode     Mode
	viewport Viewport
	g        gesture
	label    annotation.Label
	color    annotation.Color
	newID    func() string
}

func NewController(store Annotations, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		store:    store,
		log:      log,
		viewport: IdentityViewport(),
		label:    annotation.LabelOther,
		color:    annotation.DefaultColor,
		newID:    func() string { return "box_" + uuid.NewString() },
	}
}

// SetDrawStyle chooses the label and color given to newly drawn boxes.
func (c *Controller) SetDrawStyle(label annotation.Label, color annotation.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.label = annotation.ParseLabel(string(label))
	c.color = annotation.ParseColor(string(color))
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// SetViewport installs v, provided its scale keeps the transform invertible.
func (c *Controller) SetViewport(v Viewport) error {
	if !(v.Scale > 0) || math.IsInf(v.Scale, 0) {
		return fmt.Errorf("invalid viewport scale %v", v.Scale)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = v
	return nil
}

// ResetViewport restores the identity transform.
func (c *Controller) ResetViewport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport = IdentityViewport()
}

// Preview returns the transient box of the gesture in progress, if any.
func (c *Controller) Preview() *annotation.BoundingBox {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.previewLocked()
}

func (c *Controller) previewLocked() *annotation.BoundingBox {
	mode, g := c.mode, c.g
	if mode == ModeTransforming && g.resumeBox != nil {
		mode, g = g.resume, *g.resumeBox
	}
	switch mode {
	case ModeDrawing, ModeDragging, ModeResizing:
		b := g.current
		return &b
	}
	return nil
}

// Cancel abandons any gesture in progress without touching the store.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeIdle
	c.g = gesture{}
}

// Handle dispatches one event against the current mode and returns the
// resulting mode and effect.
func (c *Controller) Handle(ev Event) (Mode, Effect) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var eff Effect
	switch ev.Kind {
	case Wheel:
		// A wheel notch is a complete transform on its own: the viewport
		// changes, but the mode is left as is so an in-progress draw or
		// drag continues. Transforming is only held while a pan is dragged.
		eff = c.onWheel(ev)
	case PointerDown:
		eff = c.onPointerDown(ev)
	case PointerMove:
		eff = c.onPointerMove(ev)
	case PointerUp:
		eff = c.onPointerUp(ev)
	case KeyDown:
		eff = c.onKey(ev)
	}
	if eff.Kind != EffectNone && eff.Kind != EffectPreview && eff.Kind != EffectViewport {
		c.log.Debug("canvas event handled",
			zap.String("mode", c.mode.String()),
			zap.String("effect", eff.Kind.String()),
			zap.String("box_id", eff.BoxID))
	}
	return c.mode, eff
}

func (c *Controller) onWheel(ev Event) Effect {
	c.viewport = c.viewport.ZoomAt(ev.screen(), ev.DeltaY)
	return Effect{Kind: EffectViewport}
}

func (c *Controller) onPointerDown(ev Event) Effect {
	if ev.Pan || ev.Button != ButtonPrimary {
		return c.beginPan(ev)
	}
	if c.mode != ModeIdle {
		return Effect{}
	}

	st := c.store.Snapshot()
	if !st.HasImage() {
		return Effect{}
	}
	p := c.viewport.ToImage(ev.screen())

	if sel, ok := st.Box(st.SelectedID); ok {
		if h := c.handleAt(sel, ev.screen()); h != annotation.HandleNone {
			c.mode = ModeResizing
			c.g = gesture{anchor: p, start: sel, current: sel, handle: h}
			return Effect{Kind: EffectPreview, BoxID: sel.ID, Preview: c.previewLocked()}
		}
	}

	if idx, ok := annotation.HitTest(st.Boxes, p); ok {
		hit := st.Boxes[idx]
		if err := c.store.SelectBox(hit.ID); err != nil {
			return Effect{Kind: EffectDiscarded}
		}
		c.mode = ModeDragging
		c.g = gesture{anchor: p, start: hit, current: hit}
		return Effect{Kind: EffectSelected, BoxID: hit.ID}
	}

	if st.SelectedID != "" {
		_ = c.store.SelectBox("")
	}
	c.mode = ModeDrawing
	c.g = gesture{
		anchor: p,
		current: annotation.BoundingBox{
			ID:    c.newID(),
			X:     p.X,
			Y:     p.Y,
			Label: c.label,
			Color: c.color,
		},
	}
	return Effect{Kind: EffectPreview, Preview: c.previewLocked()}
}

// beginPan enters Transforming from Idle or Drawing. A paused draw gesture
// resumes when the pan ends.
func (c *Controller) beginPan(ev Event) Effect {
	if c.mode != ModeIdle && c.mode != ModeDrawing {
		return Effect{}
	}
	paused := c.g
	next := gesture{lastPan: ev.screen(), resume: c.mode}
	if c.mode == ModeDrawing {
		next.resumeBox = &paused
	}
	c.g = next
	c.mode = ModeTransforming
	return Effect{Kind: EffectViewport}
}

func (c *Controller) onPointerMove(ev Event) Effect {
	switch c.mode {
	case ModeTransforming:
		s := ev.screen()
		c.viewport = c.viewport.Pan(s.X-c.g.lastPan.X, s.Y-c.g.lastPan.Y)
		c.g.lastPan = s
		return Effect{Kind: EffectViewport}

	case ModeDrawing:
		p := c.viewport.ToImage(ev.screen())
		c.g.current.Width = p.X - c.g.anchor.X
		c.g.current.Height = p.Y - c.g.anchor.Y

	case ModeDragging:
		p := c.viewport.ToImage(ev.screen())
		c.g.current = annotation.Translate(c.g.start, p.X-c.g.anchor.X, p.Y-c.g.anchor.Y)

	case ModeResizing:
		p := c.viewport.ToImage(ev.screen())
		candidate := annotation.Resize(c.g.start, c.g.handle, p.X-c.g.anchor.X, p.Y-c.g.anchor.Y)
		if candidate.Width >= annotation.MinBoxSize && candidate.Height >= annotation.MinBoxSize {
			c.g.current = candidate
		}

	default:
		return Effect{}
	}
	return Effect{Kind: EffectPreview, BoxID: c.g.current.ID, Preview: c.previewLocked()}
}

func (c *Controller) onPointerUp(ev Event) Effect {
	switch c.mode {
	case ModeTransforming:
		c.endPan()
		return Effect{Kind: EffectViewport}

	case ModeDrawing:
		box := c.g.current
		c.finish()
		box, ok := annotation.ClampMinSize(box, annotation.MinBoxSize)
		if !ok {
			return Effect{Kind: EffectDiscarded}
		}
		if err := c.store.AddBox(box); err != nil {
			c.log.Debug("drawn box rejected", zap.Error(err))
			return Effect{Kind: EffectDiscarded}
		}
		return Effect{Kind: EffectBoxAdded, BoxID: box.ID}

	case ModeDragging, ModeResizing:
		start, box := c.g.start, c.g.current
		c.finish()
		if box == start {
			return Effect{Kind: EffectSelected, BoxID: box.ID}
		}
		if err := c.store.UpdateBox(box); err != nil {
			c.log.Debug("box edit rejected", zap.String("box_id", box.ID), zap.Error(err))
			return Effect{Kind: EffectDiscarded, BoxID: box.ID}
		}
		return Effect{Kind: EffectBoxUpdated, BoxID: box.ID}
	}
	return Effect{}
}

func (c *Controller) onKey(ev Event) Effect {
	switch ev.Key {
	case "Escape":
		switch c.mode {
		case ModeIdle:
			if st := c.store.Snapshot(); st.SelectedID != "" {
				_ = c.store.SelectBox("")
				return Effect{Kind: EffectSelected}
			}
			return Effect{}
		case ModeTransforming:
			c.endPan()
			if c.mode == ModeIdle {
				return Effect{Kind: EffectViewport}
			}
		}
		id := c.g.current.ID
		c.finish()
		return Effect{Kind: EffectDiscarded, BoxID: id}

	case "Delete", "Backspace":
		if c.mode != ModeIdle {
			return Effect{}
		}
		st := c.store.Snapshot()
		if st.SelectedID == "" {
			return Effect{}
		}
		c.store.DeleteBox(st.SelectedID)
		return Effect{Kind: EffectBoxDeleted, BoxID: st.SelectedID}
	}
	return Effect{}
}

func (c *Controller) endPan() {
	resume, box := c.g.resume, c.g.resumeBox
	c.mode = resume
	if box != nil {
		c.g = *box
		return
	}
	c.g = gesture{}
}

func (c *Controller) finish() {
	c.mode = ModeIdle
	c.g = gesture{}
}

// handleAt returns the grip of b under the screen point s, if any.
func (c *Controller) handleAt(b annotation.BoundingBox, s annotation.Point) annotation.Handle {
	anchors := annotation.HandleAnchors(b)
	best, bestDist := annotation.HandleNone, HandleRadius*HandleRadius
	for h := annotation.HandleTopLeft; h <= annotation.HandleLeft; h++ {
		sp := c.viewport.ToScreen(anchors[h])
		dx, dy := sp.X-s.X, sp.Y-s.Y
		if d := dx*dx + dy*dy; d < bestDist || (best == annotation.HandleNone && d == bestDist) {
			best, bestDist = h, d
		}
	}
	return best
}
