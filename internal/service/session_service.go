package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/ndewijer/Holdings-Import-Backend/internal/apperrors"
	"github.com/ndewijer/Holdings-Import-Backend/internal/model"
)

// ImportSession is one in-progress import of an owner: the accumulated files,
// the preview built from them and, once computed, the change summary awaiting
// confirmation. Sessions live in memory only; dropping one never touches the
// stored portfolio.
type ImportSession struct {
	ID        string               `json:"id"`
	OwnerID   string               `json:"ownerId"`
	Files     []model.UploadedFile `json:"files"`
	Result    model.ParseResult    `json:"result"`
	Pending   *model.ChangeSummary `json:"pending,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// FileNames returns the names of the session's files in upload order.
func (s ImportSession) FileNames() []string {
	names := make([]string, len(s.Files))
	for i, f := range s.Files {
		names[i] = f.Name
	}
	return names
}

// SessionService keeps import sessions in an expiring in-memory cache and
// drives them through preview, diff and apply.
type SessionService struct {
	sessions *cache.Cache
	imports  *ImportService
	locks    *keyedLocks
	now      func() time.Time
}

// NewSessionService creates a SessionService whose sessions expire ttl after
// their last modification.
func NewSessionService(imports *ImportService, ttl time.Duration) *SessionService {
	return &SessionService{
		sessions: cache.New(ttl, 2*ttl),
		imports:  imports,
		locks:    newKeyedLocks(),
		now:      time.Now,
	}
}

// Create starts an empty import session for the owner.
func (s *SessionService) Create(ownerID string) ImportSession {
	now := s.now().UTC()
	session := ImportSession{
		ID:        uuid.New().String(),
		OwnerID:   ownerID,
		Files:     []model.UploadedFile{},
		Result:    emptyResult(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions.Set(session.ID, session, cache.DefaultExpiration)
	return session
}

// Get returns the owner's session.
//
// Errors:
//   - apperrors.ErrSessionNotFound if the session does not exist or expired
//   - apperrors.ErrSessionOwnerMismatch if the session belongs to another owner
func (s *SessionService) Get(ownerID, sessionID string) (ImportSession, error) {
	v, ok := s.sessions.Get(sessionID)
	if !ok {
		return ImportSession{}, apperrors.ErrSessionNotFound
	}
	session := v.(ImportSession)
	if session.OwnerID != ownerID {
		return ImportSession{}, apperrors.ErrSessionOwnerMismatch
	}
	return session, nil
}

// AddFiles appends files to the session and rebuilds the preview from the
// whole file set. Any pending change summary is discarded.
func (s *SessionService) AddFiles(ownerID, sessionID string, files []model.UploadedFile) (ImportSession, error) {
	if len(files) == 0 {
		return ImportSession{}, apperrors.ErrNoFiles
	}

	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.Get(ownerID, sessionID)
	if err != nil {
		return ImportSession{}, err
	}

	session.Files = append(slices.Clone(session.Files), files...)
	session.Result = s.imports.Preview(session.Files)
	session.Pending = nil
	session.UpdatedAt = s.now().UTC()

	s.sessions.Set(session.ID, session, cache.DefaultExpiration)
	return session, nil
}

// Diff computes the change summary of the session's preview against the
// stored portfolio and keeps it as the summary a later Apply confirms.
func (s *SessionService) Diff(ctx context.Context, ownerID, sessionID string) (model.ChangeSummary, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.Get(ownerID, sessionID)
	if err != nil {
		return model.ChangeSummary{}, err
	}
	if len(session.Files) == 0 {
		return model.ChangeSummary{}, apperrors.ErrNoFiles
	}

	summary, err := s.imports.Diff(ctx, ownerID, session.Result)
	if err != nil {
		return model.ChangeSummary{}, err
	}

	session.Pending = &summary
	session.UpdatedAt = s.now().UTC()
	s.sessions.Set(session.ID, session, cache.DefaultExpiration)
	return summary, nil
}

// Apply commits the session's pending change summary and ends the session.
// When the stored portfolio changed since Diff, the pending summary is
// dropped and apperrors.ErrStaleChangeSummary is returned; the session stays
// open for a new Diff.
func (s *SessionService) Apply(ctx context.Context, ownerID, sessionID string) (model.ImportHistoryRecord, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	session, err := s.Get(ownerID, sessionID)
	if err != nil {
		return model.ImportHistoryRecord{}, err
	}
	if session.Pending == nil {
		return model.ImportHistoryRecord{}, apperrors.ErrNoPendingDiff
	}

	record, err := s.imports.Apply(ctx, ownerID, session.FileNames(), session.Result, *session.Pending)
	if err != nil {
		if errors.Is(err, apperrors.ErrStaleChangeSummary) {
			session.Pending = nil
			session.UpdatedAt = s.now().UTC()
			s.sessions.Set(session.ID, session, cache.DefaultExpiration)
		}
		return model.ImportHistoryRecord{}, err
	}

	s.sessions.Delete(session.ID)
	return record, nil
}

// Cancel discards the session without touching the stored portfolio.
func (s *SessionService) Cancel(ownerID, sessionID string) error {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	if _, err := s.Get(ownerID, sessionID); err != nil {
		return err
	}
	s.sessions.Delete(sessionID)
	return nil
}

func emptyResult() model.ParseResult {
	return model.ParseResult{
		Positions:    []model.ParsedPosition{},
		CashAccounts: []model.AccountBreakdown{},
		Errors:       []string{},
	}
}
