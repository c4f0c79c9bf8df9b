// Package session keeps the in-memory view of published sessions and the
// advisory state of background processing jobs.
package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/almariscal/criptohacienda/internal/models"
	"github.com/almariscal/criptohacienda/internal/repository"
)

// Store caches published sessions in memory and writes them through to the
// repository. A session is only set once its whole pipeline succeeded, so
// readers never observe partial state.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*models.SessionData
	repo     repository.SessionRepository
	logger   *logrus.Logger
}

// NewStore creates a store backed by repo.
func NewStore(repo repository.SessionRepository, logger *logrus.Logger) *Store {
	return &Store{
		sessions: make(map[string]*models.SessionData),
		repo:     repo,
		logger:   logger,
	}
}

// Set publishes a session atomically: the in-memory entry and the
// persisted row carry the complete result set.
func (s *Store) Set(id string, data *models.SessionData) error {
	if err := s.repo.Save(id, data); err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[id] = data
	s.mu.Unlock()
	return nil
}

// Get returns a session, loading it from the repository when the process
// was restarted since it was published.
func (s *Store) Get(id string) *models.SessionData {
	s.mu.Lock()
	data := s.sessions[id]
	s.mu.Unlock()
	if data != nil {
		return data
	}

	loaded, err := s.repo.Load(id)
	if err != nil {
		s.logger.Warnf("[session] failed to load %s: %v", id, err)
		return nil
	}
	if loaded != nil {
		s.mu.Lock()
		s.sessions[id] = loaded
		s.mu.Unlock()
	}
	return loaded
}

// Delete removes a session from memory and the repository.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, inMemory := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	persisted, err := s.repo.Delete(id)
	if err != nil {
		s.logger.Warnf("[session] failed to delete %s: %v", id, err)
	}
	return inMemory || persisted
}

// Exists reports whether the session is known in memory or persisted.
func (s *Store) Exists(id string) bool {
	s.mu.Lock()
	_, ok := s.sessions[id]
	s.mu.Unlock()
	return ok || s.repo.Exists(id)
}
