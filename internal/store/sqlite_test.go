package store

import (
	"path/filepath"
	"testing"
)

const (
	drawingSlot  = "drawing"
	chatSlot     = "chat"
	settingsSlot = "prefs"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "slots.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLoadMissingSlot(t *testing.T) {
	s := newTestStore(t)
	payload, ok, err := s.LoadSlot(drawingSlot)
	if err != nil || ok || payload != nil {
		t.Errorf("LoadSlot on empty db = %q, %v, %v", payload, ok, err)
	}
}

func TestSaveOverwritesSlot(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveSlot(chatSlot, []byte(`[{"sender":"user"}]`)); err != nil {
		t.Fatalf("SaveSlot: %v", err)
	}
	if err := s.SaveSlot(chatSlot, []byte(`[]`)); err != nil {
		t.Fatalf("SaveSlot overwrite: %v", err)
	}

	payload, ok, err := s.LoadSlot(chatSlot)
	if err != nil || !ok {
		t.Fatalf("LoadSlot: ok=%v err=%v", ok, err)
	}
	if string(payload) != `[]` {
		t.Errorf("payload = %q, want []", payload)
	}

	slots, err := s.ListSlots()
	if err != nil {
		t.Fatal(err)
	}
	if len(slots) != 1 || slots[0].Name != chatSlot || slots[0].UpdatedAt.IsZero() {
		t.Errorf("ListSlots = %+v", slots)
	}
}

func TestSlotsAreIndependent(t *testing.T) {
	s := newTestStore(t)
	_ = s.SaveSlot(drawingSlot, []byte(`{"image_ref":"a"}`))
	_ = s.SaveSlot(settingsSlot, []byte(`{"chat_model":"gpt-4o"}`))

	if err := s.DeleteSlot(drawingSlot); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteSlot("never-written"); err != nil {
		t.Errorf("deleting missing slot: %v", err)
	}
	if _, ok, _ := s.LoadSlot(drawingSlot); ok {
		t.Error("deleted slot still present")
	}
	if p, ok, _ := s.LoadSlot(settingsSlot); !ok || string(p) != `{"chat_model":"gpt-4o"}` {
		t.Errorf("settings slot = %q, %v", p, ok)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slots.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	_ = s.SaveSlot(drawingSlot, []byte(`{"image_ref":"x"}`))
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	if p, ok, _ := s2.LoadSlot(drawingSlot); !ok || string(p) != `{"image_ref":"x"}` {
		t.Errorf("after reopen: %q, %v", p, ok)
	}
}
