package telegram

import "sync"

// InputKind marks what the next plain-text message from a chat means.
type InputKind int

const (
	InputNone InputKind = iota
	InputAge
	InputHeight
	InputWeight
	InputPromoCode
)

type StateManager struct {
	mu      sync.RWMutex
	pending map[int64]InputKind
}

func NewStateManager() *StateManager {
	return &StateManager{
		pending: make(map[int64]InputKind),
	}
}

func (m *StateManager) Get(chatID int64) InputKind {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pending[chatID]
}

func (m *StateManager) Set(chatID int64, kind InputKind) {
	m.mu.Lock()
	m.pending[chatID] = kind
	m.mu.Unlock()
}

func (m *StateManager) Reset(chatID int64) {
	m.mu.Lock()
	delete(m.pending, chatID)
	m.mu.Unlock()
}
