package csvimport

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntityType names the feed an import session targets
type EntityType string

const (
	EntityProductWeights  EntityType = "product_weights"
	EntityDeliveryRecords EntityType = "delivery_records"
)

// ImportState is the lifecycle state of an import session
type ImportState string

const (
	StateCreated    ImportState = "created"
	StateValidating ImportState = "validating"
	StateValidated  ImportState = "validated"
	StateImporting  ImportState = "importing"
	StateCompleted  ImportState = "completed"
	StateFailed     ImportState = "failed"
	StateCancelled  ImportState = "cancelled"
)

// ImportSession tracks one uploaded file across the validate and import
// calls. Sessions are short-lived; the store expires them by TTL.
type ImportSession struct {
	ID          uuid.UUID        `json:"id"`
	EntityType  EntityType       `json:"entity_type"`
	FileName    string           `json:"file_name"`
	FileSize    int64            `json:"file_size"`
	State       ImportState      `json:"state"`
	TotalRows   int              `json:"total_rows"`
	ValidRows   int              `json:"valid_rows"`
	ErrorRows   int              `json:"error_rows"`
	Errors      []RowError       `json:"errors,omitempty"`
	Preview     []map[string]any `json:"preview,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

// NewImportSession creates a session in the created state
func NewImportSession(entityType EntityType, fileName string, fileSize int64) *ImportSession {
	now := time.Now()
	return &ImportSession{
		ID:         uuid.New(),
		EntityType: entityType,
		FileName:   fileName,
		FileSize:   fileSize,
		State:      StateCreated,
		CreatedAt:  now,
		UpdatedAt:  now,
		Errors:     make([]RowError, 0),
		Preview:    make([]map[string]any, 0),
	}
}

// UpdateState advances the session and stamps terminal states
func (s *ImportSession) UpdateState(state ImportState) {
	s.State = state
	s.UpdatedAt = time.Now()
	if state == StateCompleted || state == StateFailed || state == StateCancelled {
		now := time.Now()
		s.CompletedAt = &now
	}
}

// SetValidationResult copies a validation outcome into the session
func (s *ImportSession) SetValidationResult(result *ValidationResult) {
	s.TotalRows = result.TotalRows
	s.ValidRows = result.ValidRows
	s.ErrorRows = result.ErrorRows
	s.Errors = result.Errors
	s.Preview = result.Preview
	s.UpdatedAt = time.Now()
}

// IsValid reports whether validation found no bad rows
func (s *ImportSession) IsValid() bool {
	return s.ErrorRows == 0
}

// SessionStore keeps import sessions between the validate and import calls
type SessionStore interface {
	Save(session *ImportSession) error
	Get(id uuid.UUID) (*ImportSession, error)
	Delete(id uuid.UUID) error
}

// InMemorySessionStore is a TTL-bounded in-process SessionStore. Get
// returns nil for expired sessions; a background sweep reclaims them.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*ImportSession
	ttl      time.Duration
	stopCh   chan struct{}
}

// NewInMemorySessionStore creates a store expiring sessions after ttl
func NewInMemorySessionStore(ttl time.Duration) *InMemorySessionStore {
	s := &InMemorySessionStore{
		sessions: make(map[uuid.UUID]*ImportSession),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

func (s *InMemorySessionStore) sweepLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.Cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// Stop ends the background sweep
func (s *InMemorySessionStore) Stop() {
	close(s.stopCh)
}

// Save stores or replaces a session
func (s *InMemorySessionStore) Save(session *ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

// Get returns the session, or nil when unknown or expired
func (s *InMemorySessionStore) Get(id uuid.UUID) (*ImportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || time.Since(session.CreatedAt) > s.ttl {
		return nil, nil
	}
	return session, nil
}

// Delete removes a session
func (s *InMemorySessionStore) Delete(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Cleanup drops every expired session
func (s *InMemorySessionStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if time.Since(session.CreatedAt) > s.ttl {
			delete(s.sessions, id)
		}
	}
}
