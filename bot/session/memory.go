package session

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu       sync.RWMutex
	sessions map[int64][]byte
}

// NewMemoryStore constructs an in-process Store for tests and development.
// Records are kept encoded so the memory driver enforces the same codec rules
// as the persistent ones.
func NewMemoryStore() Store {
	return &memoryStore{
		sessions: make(map[int64][]byte),
	}
}

// Get returns the stored session or the default logged-out session.
func (m *memoryStore) Get(_ context.Context, chatID int64) (Session, error) {
	if err := checkChatID(chatID); err != nil {
		return Session{}, err
	}
	m.mu.RLock()
	data, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if !ok {
		return New(chatID), nil
	}
	return Unmarshal(chatID, data)
}

// Set replaces the session for s.ChatID.
func (m *memoryStore) Set(_ context.Context, s Session) error {
	if err := checkChatID(s.ChatID); err != nil {
		return err
	}
	data, err := Marshal(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ChatID] = data
	return nil
}

// Delete removes the session for chatID.
func (m *memoryStore) Delete(_ context.Context, chatID int64) error {
	if err := checkChatID(chatID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, chatID)
	return nil
}
