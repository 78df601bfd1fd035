package annotation

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SlotName is the durable slot holding the serialized annotation state.
const SlotName = "drawing_state"

var (
	ErrDuplicateID = errors.New("box id already present")
	ErrMissingID   = errors.New("box id is empty")
	ErrBoxTooSmall = errors.New("box is below the minimum size")
	ErrBoxNotFound = errors.New("box not found")
	ErrNoImage     = errors.New("no image loaded")
)

// Persister is the durable key-value slot the store writes through to.
type Persister interface {
	SaveSlot(name string, payload []byte) error
	LoadSlot(name string) ([]byte, bool, error)
}

// State is an immutable snapshot. Callers receive copies; the store never
// hands out its own backing slice.
type State struct {
	ImageRef   string        `json:"image_ref"`
	Boxes      []BoundingBox `json:"boxes"`
	SelectedID string        `json:"selected_id"`
}

// HasImage reports whether an image is loaded.
func (s State) HasImage() bool { return s.ImageRef != "" }

// Box looks a box up by id.
func (s State) Box(id string) (BoundingBox, bool) {
	for _, b := range s.Boxes {
		if b.ID == id {
			return b, true
		}
	}
	return BoundingBox{}, false
}

// Store is the single source of truth for the current image, its boxes and
// the selection. Every successful mutation is written to the persister
// before the call returns.
type Store struct {
	mu    sync.RWMutex
	state State
	epoch uint64
	slots Persister
	log   *zap.Logger
}

// NewStore restores the last persisted snapshot, falling back to the empty
// state when the slot is missing or unreadable.
func NewStore(slots Persister, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{slots: slots, log: log}
	s.state = s.restore()
	return s
}

func (s *Store) restore() State {
	if s.slots == nil {
		return State{}
	}
	payload, ok, err := s.slots.LoadSlot(SlotName)
	if err != nil {
		s.log.Warn("failed to read annotation slot, starting empty", zap.Error(err))
		return State{}
	}
	if !ok || len(payload) == 0 {
		return State{}
	}
	var saved State
	if err := json.Unmarshal(payload, &saved); err != nil {
		s.log.Warn("annotation slot is corrupt, starting empty", zap.Error(err))
		return State{}
	}

	restored := State{ImageRef: saved.ImageRef}
	if restored.HasImage() {
		seen := make(map[string]bool, len(saved.Boxes))
		for _, b := range saved.Boxes {
			if b.ID == "" || seen[b.ID] {
				continue
			}
			b, ok := HoldsMinSize(b, MinBoxSize)
			if !ok {
				continue
			}
			seen[b.ID] = true
			restored.Boxes = append(restored.Boxes, coerce(b))
		}
	}
	if _, ok := restored.Box(saved.SelectedID); ok {
		restored.SelectedID = saved.SelectedID
	}
	s.log.Debug("restored annotation state",
		zap.Bool("has_image", restored.HasImage()),
		zap.Int("boxes", len(restored.Boxes)))
	return restored
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

// Epoch identifies the current image session. It advances whenever the
// image is replaced or the store is reset.
func (s *Store) Epoch() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.epoch
}

// SetImage replaces the image and drops every box and the selection.
func (s *Store) SetImage(ref string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.commit(State{ImageRef: ref})
}

func (s *Store) AddBox(b BoundingBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.HasImage() {
		return ErrNoImage
	}
	if b.ID == "" {
		return ErrMissingID
	}
	if _, exists := s.state.Box(b.ID); exists {
		return ErrDuplicateID
	}
	b, ok := ClampMinSize(b, MinBoxSize)
	if !ok {
		return ErrBoxTooSmall
	}
	b = coerce(b)

	next := s.state.clone()
	next.Boxes = append(next.Boxes, b)
	s.commit(next)
	return nil
}

// UpdateBox replaces the box with the same id, keeping its z-order position.
// An edge below MinBoxSize is rejected with ErrBoxTooSmall.
func (s *Store) UpdateBox(b BoundingBox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.state.Boxes {
		if s.state.Boxes[i].ID == b.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrBoxNotFound
	}
	b, ok := HoldsMinSize(b, MinBoxSize)
	if !ok {
		return ErrBoxTooSmall
	}

	next := s.state.clone()
	next.Boxes[idx] = coerce(b)
	s.commit(next)
	return nil
}

// DeleteBox removes a box. Unknown ids are ignored.
func (s *Store) DeleteBox(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, b := range s.state.Boxes {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	next := s.state.clone()
	next.Boxes = append(next.Boxes[:idx], next.Boxes[idx+1:]...)
	if next.SelectedID == id {
		next.SelectedID = ""
	}
	s.commit(next)
}

// SetBoxes replaces the whole sequence. Invalid elements are dropped from
// the batch rather than failing it; the number kept is returned.
func (s *Store) SetBoxes(boxes []BoundingBox) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setBoxesLocked(boxes)
}

// SetBoxesIfCurrent is SetBoxes guarded by the epoch observed when the
// caller started its work. confirm, if set, runs under the store lock just
// before the commit; returning false aborts it. A stale epoch or a refused
// confirm leaves the store untouched.
func (s *Store) SetBoxesIfCurrent(epoch uint64, boxes []BoundingBox, confirm func(kept int) bool) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return 0, false
	}
	next := s.replacement(boxes)
	if confirm != nil && !confirm(len(next.Boxes)) {
		return 0, false
	}
	s.commit(next)
	return len(next.Boxes), true
}

func (s *Store) setBoxesLocked(boxes []BoundingBox) int {
	next := s.replacement(boxes)
	s.commit(next)
	return len(next.Boxes)
}

// replacement builds the state SetBoxes would install. Must hold s.mu.
func (s *Store) replacement(boxes []BoundingBox) State {
	next := State{ImageRef: s.state.ImageRef}
	if next.HasImage() {
		next.Boxes = validBatch(boxes)
	}
	return next
}

// SelectBox sets the selection. An empty id clears it.
func (s *Store) SelectBox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.state.Box(id); !ok {
			return ErrBoxNotFound
		}
	}
	if s.state.SelectedID == id {
		return nil
	}
	next := s.state.clone()
	next.SelectedID = id
	s.commit(next)
	return nil
}

// ClearBoxes empties the box sequence but keeps the image.
func (s *Store) ClearBoxes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commit(State{ImageRef: s.state.ImageRef})
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.commit(State{})
}

// commit installs next and writes it through. Must hold s.mu.
func (s *Store) commit(next State) {
	s.state = next
	if s.slots == nil {
		return
	}
	payload, err := json.Marshal(next)
	if err != nil {
		s.log.Error("failed to encode annotation state", zap.Error(err))
		return
	}
	if err := s.slots.SaveSlot(SlotName, payload); err != nil {
		s.log.Warn("failed to persist annotation state", zap.Error(err))
	}
}

func (st State) clone() State {
	out := st
	if st.Boxes != nil {
		out.Boxes = make([]BoundingBox, len(st.Boxes))
		copy(out.Boxes, st.Boxes)
	}
	return out
}

// validBatch keeps the boxes that pass the size check, dropping repeated ids.
// Boxes without an id receive a fresh one.
func validBatch(in []BoundingBox) []BoundingBox {
	out := make([]BoundingBox, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, b := range in {
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if seen[b.ID] {
			continue
		}
		b, ok := ClampMinSize(b, MinBoxSize)
		if !ok {
			continue
		}
		seen[b.ID] = true
		out = append(out, coerce(b))
	}
	return out
}

func coerce(b BoundingBox) BoundingBox {
	b.Label = ParseLabel(string(b.Label))
	b.Color = ParseColor(string(b.Color))
	return b
}
