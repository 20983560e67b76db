package fixture

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Item is a stored record served under /items.
type Item struct {
	ID        string
	Name      string
	Tags      []string
	Data      map[string]interface{}
	Version   int
	Owner     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (i *Item) response() ItemResponse {
	return ItemResponse{
		ID:        i.ID,
		Name:      i.Name,
		Tags:      i.Tags,
		Data:      i.Data,
		Version:   i.Version,
		Owner:     i.Owner,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// ItemStore is an in-memory item repository.
type ItemStore struct {
	mu    sync.RWMutex
	items map[string]*Item
	now   func() time.Time
}

// NewItemStore creates an empty store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[string]*Item), now: time.Now}
}

// Get returns a copy of the item with id.
func (s *ItemStore) Get(id string) (Item, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Create stores a new item under a generated id.
func (s *ItemStore) Create(owner string, req ItemRequest) Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	item := &Item{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Tags:      req.Tags,
		Data:      req.Data,
		Version:   1,
		Owner:     owner,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.items[item.ID] = item
	return *item
}

// Put creates or replaces the item with id. created reports whether the
// item did not exist before.
func (s *ItemStore) Put(id, owner string, req ItemRequest) (item Item, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	existing, ok := s.items[id]
	if !ok {
		existing = &Item{ID: id, Owner: owner, CreatedAt: now}
		s.items[id] = existing
	}
	existing.Name = req.Name
	existing.Tags = req.Tags
	existing.Data = req.Data
	existing.Version++
	existing.UpdatedAt = now
	return *existing, !ok
}

// Delete removes the item with id and reports whether it existed.
func (s *ItemStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

// StoredFile is a file served under /files.
type StoredFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// FileStore holds uploaded and seeded files by name.
type FileStore struct {
	mu    sync.RWMutex
	files map[string]StoredFile
}

// NewFileStore creates a store holding the given files.
func NewFileStore(files ...StoredFile) *FileStore {
	s := &FileStore{files: make(map[string]StoredFile)}
	for _, f := range files {
		s.Put(f)
	}
	return s
}

// Put stores f, replacing any file with the same name.
func (s *FileStore) Put(f StoredFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[f.Name] = f
}

// Get returns the file called name.
func (s *FileStore) Get(name string) (StoredFile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[name]
	return f, ok
}
