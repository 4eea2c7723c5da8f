// Package session keeps the per-document state created on upload.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"levi/internal/domain"
	"levi/internal/vectorindex"
)

var ErrNotFound = errors.New("session: not found")

// Session is an uploaded document with its chunks and, when the embedder was
// reachable, an index over the chunk vectors in chunk order. Generation names
// the corpus whose embedder produced those vectors. A Session is not modified
// after creation.
type Session struct {
	ID         string
	Name       string
	Text       string
	WordCount  int
	Chunks     []domain.Chunk
	Index      *vectorindex.Flat
	Generation uint64
	CreatedAt  time.Time
}

// Embedded reports whether the session carries chunk vectors.
func (s *Session) Embedded() bool { return s.Index != nil && s.Index.Len() > 0 }

// Store holds live sessions by id.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session), now: time.Now}
}

// Create assigns an id and creation time to s and stores it.
func (st *Store) Create(s Session) *Session {
	s.ID = uuid.NewString()
	s.CreatedAt = st.now()
	st.mu.Lock()
	st.sessions[s.ID] = &s
	st.mu.Unlock()
	return &s
}

func (st *Store) Get(id string) (*Session, error) {
	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Delete drops the session. Readers holding it keep a usable value.
func (st *Store) Delete(id string) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(st.sessions, id)
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Expire deletes sessions created before cutoff and returns how many went.
func (st *Store) Expire(cutoff time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()
	n := 0
	for id, s := range st.sessions {
		if s.CreatedAt.Before(cutoff) {
			delete(st.sessions, id)
			n++
		}
	}
	return n
}
