package docroom

import "sync"

// Coauthor is a collaborator cursor as reported by the document store.
type Coauthor struct {
	UserID   string
	UserName string
	Cursor   int
}

// Store is the external collaborative document engine, scoped to one room
// at a time. SetContent is the single content-mutating entry point; for a
// given room it is owned exclusively by the Migrator.
type Store interface {
	Room() string
	SwitchRoom(room string)
	Content() string
	SetContent(content string)
	Synced() bool
	OnChange(fn func(content string))
	OnSync(fn func(room string))
	Coauthors() []Coauthor
}

// MemoryStore is an in-memory Store used in tests and offline wiring. Rooms
// keep their content across switches, like the real engine's local cache.
type MemoryStore struct {
	mu       sync.Mutex
	room     string
	rooms    map[string]string
	synced   bool
	onChange func(string)
	onSync   func(string)
	authors  []Coauthor
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: map[string]string{}}
}

func (s *MemoryStore) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *MemoryStore) SwitchRoom(room string) {
	s.mu.Lock()
	s.room = room
	s.synced = false
	s.mu.Unlock()
}

func (s *MemoryStore) Content() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[s.room]
}

func (s *MemoryStore) SetContent(content string) {
	s.mu.Lock()
	s.rooms[s.room] = content
	fn := s.onChange
	s.mu.Unlock()
	if fn != nil {
		fn(content)
	}
}

func (s *MemoryStore) Synced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.synced
}

func (s *MemoryStore) OnChange(fn func(string)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *MemoryStore) OnSync(fn func(string)) {
	s.mu.Lock()
	s.onSync = fn
	s.mu.Unlock()
}

func (s *MemoryStore) Coauthors() []Coauthor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Coauthor, len(s.authors))
	copy(out, s.authors)
	return out
}

// MarkSynced simulates the engine reporting the current room synced.
func (s *MemoryStore) MarkSynced() {
	s.mu.Lock()
	s.synced = true
	room := s.room
	fn := s.onSync
	s.mu.Unlock()
	if fn != nil {
		fn(room)
	}
}

// SeedRoom pre-populates a room without firing change notifications,
// standing in for content written by another collaborator.
func (s *MemoryStore) SeedRoom(room, content string) {
	s.mu.Lock()
	s.rooms[room] = content
	s.mu.Unlock()
}
