package chat

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// SlotName is the durable slot holding the serialized transcript.
const SlotName = "chat_history"

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
	SenderSystem    Sender = "system"
)

type ChatMessage struct {
	Sender  Sender `json:"sender"`
	Content string `json:"content"`
}

// Persister is the durable slot the transcript writes through to.
type Persister interface {
	SaveSlot(name string, payload []byte) error
	LoadSlot(name string) ([]byte, bool, error)
}

// Transcript is the ordered, append-only chat log of the session.
type Transcript struct {
	mu       sync.RWMutex
	messages []ChatMessage
	epoch    uint64
	slots    Persister
	log      *zap.Logger
}

func NewTranscript(slots Persister, log *zap.Logger) *Transcript {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Transcript{slots: slots, log: log}
	t.messages = t.restore()
	return t
}

func (t *Transcript) restore() []ChatMessage {
	if t.slots == nil {
		return nil
	}
	payload, ok, err := t.slots.LoadSlot(SlotName)
	if err != nil {
		t.log.Warn("failed to read chat slot, starting empty", zap.Error(err))
		return nil
	}
	if !ok || len(payload) == 0 {
		return nil
	}
	var saved []ChatMessage
	if err := json.Unmarshal(payload, &saved); err != nil {
		t.log.Warn("chat slot is corrupt, starting empty", zap.Error(err))
		return nil
	}
	out := saved[:0]
	for _, m := range saved {
		switch m.Sender {
		case SenderUser, SenderAssistant, SenderSystem:
			out = append(out, m)
		}
	}
	return out
}

// Messages returns a copy of the transcript in order.
func (t *Transcript) Messages() []ChatMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Epoch advances every time the transcript is cleared.
func (t *Transcript) Epoch() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.epoch
}

func (t *Transcript) Append(sender Sender, content string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendLocked(ChatMessage{Sender: sender, Content: content})
}

// AppendIfCurrent appends only while the transcript is still in the given
// epoch. It reports whether the message was appended.
func (t *Transcript) AppendIfCurrent(epoch uint64, sender Sender, content string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.epoch != epoch {
		return false
	}
	t.appendLocked(ChatMessage{Sender: sender, Content: content})
	return true
}

func (t *Transcript) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.epoch++
	t.messages = nil
	t.persistLocked()
}

func (t *Transcript) appendLocked(m ChatMessage) {
	t.messages = append(t.messages, m)
	t.persistLocked()
}

func (t *Transcript) persistLocked() {
	if t.slots == nil {
		return
	}
	msgs := t.messages
	if msgs == nil {
		msgs = []ChatMessage{}
	}
	payload, err := json.Marshal(msgs)
	if err != nil {
		t.log.Error("failed to encode transcript", zap.Error(err))
		return
	}
	if err := t.slots.SaveSlot(SlotName, payload); err != nil {
		t.log.Warn("failed to persist transcript", zap.Error(err))
	}
}
