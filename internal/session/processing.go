package session

import (
	"sync"

	"github.com/almariscal/criptohacienda/internal/models"
)

// ProcessingStore tracks background job state for pollers and streams
// updates to subscribers. Job state is advisory only.
type ProcessingStore struct {
	mu          sync.Mutex
	jobs        map[string]*models.ProcessingJob
	subscribers map[string][]chan models.ProcessingJob
}

// NewProcessingStore creates an empty job store.
func NewProcessingStore() *ProcessingStore {
	return &ProcessingStore{
		jobs:        make(map[string]*models.ProcessingJob),
		subscribers: make(map[string][]chan models.ProcessingJob),
	}
}

// Set registers or replaces a job.
func (s *ProcessingStore) Set(job *models.ProcessingJob) {
	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := *job
	snapshot.Steps = append([]models.ProcessingStep(nil), job.Steps...)
	s.mu.Unlock()
	s.broadcast(snapshot)
}

// Get returns a copy of the job, or nil when unknown.
func (s *ProcessingStore) Get(jobID string) *models.ProcessingJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	copied.Steps = append([]models.ProcessingStep(nil), job.Steps...)
	return &copied
}

// Update mutates a job under the store lock and notifies subscribers.
func (s *ProcessingStore) Update(jobID string, updater func(*models.ProcessingJob)) {
	s.mu.Lock()
	job, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return
	}
	updater(job)
	snapshot := *job
	snapshot.Steps = append([]models.ProcessingStep(nil), job.Steps...)
	s.mu.Unlock()
	s.broadcast(snapshot)
}

// Subscribe returns a channel receiving job snapshots after every update,
// plus a cancel function. The channel is buffered; slow consumers drop
// updates instead of blocking the pipeline.
func (s *ProcessingStore) Subscribe(jobID string) (<-chan models.ProcessingJob, func()) {
	ch := make(chan models.ProcessingJob, 16)
	s.mu.Lock()
	s.subscribers[jobID] = append(s.subscribers[jobID], ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		subs := s.subscribers[jobID]
		for i, sub := range subs {
			if sub == ch {
				s.subscribers[jobID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *ProcessingStore) broadcast(snapshot models.ProcessingJob) {
	s.mu.Lock()
	subs := append([]chan models.ProcessingJob(nil), s.subscribers[snapshot.ID]...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- snapshot:
		default:
		}
	}
}
