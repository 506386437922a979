package handler

import (
	"io"
	"sync"
	"time"

	csvimport "github.com/freightops/backend/internal/infrastructure/import"
	"github.com/google/uuid"
)

const (
	// Maximum file size for imports (10MB)
	maxImportFileSize = 10 * 1024 * 1024
)

// ValidationResponse represents the response from CSV import validation
type ValidationResponse struct {
	ValidationID string               `json:"validation_id" example:"550e8400-e29b-41d4-a716-446655440000"`
	TotalRows    int                  `json:"total_rows" example:"100"`
	ValidRows    int                  `json:"valid_rows" example:"98"`
	ErrorRows    int                  `json:"error_rows" example:"2"`
	Errors       []csvimport.RowError `json:"errors,omitempty"`
	Preview      []map[string]any     `json:"preview,omitempty"`
	IsTruncated  bool                 `json:"is_truncated,omitempty"`
	TotalErrors  int                  `json:"total_errors,omitempty"`
}

// newValidationResponse maps a validation result to the API shape
func newValidationResponse(result *csvimport.ValidationResult) ValidationResponse {
	return ValidationResponse{
		ValidationID: result.ValidationID,
		TotalRows:    result.TotalRows,
		ValidRows:    result.ValidRows,
		ErrorRows:    result.ErrorRows,
		Errors:       result.Errors,
		Preview:      result.Preview,
		IsTruncated:  result.IsTruncated,
		TotalErrors:  result.TotalErrors,
	}
}

// validRowsStore holds the validated rows of a session between the
// validate and import calls. Rows whose session has expired from the
// session store are dropped by a background sweep.
type validRowsStore struct {
	rows         map[uuid.UUID][]*csvimport.Row
	mu           sync.RWMutex
	sessionStore csvimport.SessionStore
	stopCh       chan struct{}
}

func newValidRowsStore(sessionStore csvimport.SessionStore) *validRowsStore {
	s := &validRowsStore{
		rows:         make(map[uuid.UUID][]*csvimport.Row),
		sessionStore: sessionStore,
		stopCh:       make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

func (s *validRowsStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.mu.Lock()
			for sessionID := range s.rows {
				session, _ := s.sessionStore.Get(sessionID)
				if session == nil {
					delete(s.rows, sessionID)
				}
			}
			s.mu.Unlock()
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup goroutine
func (s *validRowsStore) Stop() {
	close(s.stopCh)
}

func (s *validRowsStore) Put(sessionID uuid.UUID, rows []*csvimport.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[sessionID] = rows
}

func (s *validRowsStore) Get(sessionID uuid.UUID) []*csvimport.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows[sessionID]
}

func (s *validRowsStore) Delete(sessionID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, sessionID)
}

// Collect re-reads the uploaded file and stores the rows that passed
// validation so the import call can replay them.
func (s *validRowsStore) Collect(file io.ReadSeeker, sessionID uuid.UUID, result *csvimport.ValidationResult) error {
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return err
	}

	parser, err := csvimport.NewCSVParser(file)
	if err != nil {
		return err
	}
	if err := parser.ParseHeader(); err != nil {
		return err
	}

	errorRows := make(map[int]bool)
	for _, e := range result.Errors {
		errorRows[e.Row] = true
	}

	var validRows []*csvimport.Row
	for {
		row, err := parser.ReadRow()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		if row.IsEmpty() {
			continue
		}
		if !errorRows[row.LineNumber] {
			validRows = append(validRows, row)
		}
	}

	if len(validRows) > 0 {
		s.Put(sessionID, validRows)
	}
	return nil
}
