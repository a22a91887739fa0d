package repomanager

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/common"
	"github.com/dmitrijs2005/filedrop/internal/dbx"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
	"github.com/dmitrijs2005/filedrop/internal/server/quota"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/files"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/sessions"
)

// InMemoryRepositoryManager keeps all state in process memory. It backs tests
// and single-node local development; it ignores the DBTX it is handed, so
// transactional grouping is not honored.
type InMemoryRepositoryManager struct {
	files    *inMemoryFiles
	sessions *inMemorySessions
	quota    *inMemoryQuota
}

func NewInMemoryRepositoryManager(defaultQuotaBytes int64) *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		files: &inMemoryFiles{
			byKey: make(map[string]*models.FileRecord),
			byID:  make(map[string]*models.FileRecord),
		},
		sessions: &inMemorySessions{byID: make(map[string]*models.UploadSession)},
		quota: &inMemoryQuota{
			defaultLimitBytes: defaultQuotaBytes,
			used:              make(map[string]int64),
			ledger:            make(map[string]struct{}),
		},
	}
}

func (m *InMemoryRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return m.files
}

func (m *InMemoryRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return m.sessions
}

func (m *InMemoryRepositoryManager) Quota(db dbx.DBTX) quota.Guard {
	return m.quota
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	return nil
}

type inMemoryFiles struct {
	mu    sync.Mutex
	byKey map[string]*models.FileRecord
	byID  map[string]*models.FileRecord
}

func (r *inMemoryFiles) InsertIfAbsent(ctx context.Context, record *models.FileRecord) (bool, *models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byKey[record.ObjectKey]; ok {
		return false, existing, nil
	}
	stored := *record
	stored.CreatedAt = time.Now()
	r.byKey[stored.ObjectKey] = &stored
	r.byID[stored.ID] = &stored
	return true, &stored, nil
}

func (r *inMemoryFiles) GetByID(ctx context.Context, id string) (*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.byID[id]; ok {
		return record, nil
	}
	return nil, common.ErrorNotFound
}

func (r *inMemoryFiles) GetByObjectKey(ctx context.Context, objectKey string) (*models.FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record, ok := r.byKey[objectKey]; ok {
		return record, nil
	}
	return nil, common.ErrorNotFound
}

type inMemorySessions struct {
	mu   sync.Mutex
	byID map[string]*models.UploadSession
}

func (r *inMemorySessions) Create(ctx context.Context, session *models.UploadSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := *session
	r.byID[stored.ID] = &stored
	return nil
}

func (r *inMemorySessions) Get(ctx context.Context, id string) (*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[id]
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

func (r *inMemorySessions) Claim(ctx context.Context, id string, parts []models.UploadPart) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[id]
	if !ok || session.Status != models.SessionInitiated {
		return false, nil
	}
	session.Status = models.SessionCompleting
	session.Parts = append([]models.UploadPart(nil), parts...)
	return true, nil
}

func (r *inMemorySessions) Transition(ctx context.Context, id string, from, to models.SessionStatus) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, common.ErrorValidation
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[id]
	if !ok || session.Status != from {
		return false, nil
	}
	session.Status = to
	return true, nil
}

func (r *inMemorySessions) SelectExpired(ctx context.Context, now time.Time, limit int) ([]*models.UploadSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.UploadSession
	for _, session := range r.byID {
		if len(out) == limit {
			break
		}
		open := session.Status == models.SessionInitiated || session.Status == models.SessionCompleting
		if open && session.Expired(now) {
			cp := *session
			out = append(out, &cp)
		}
	}
	return out, nil
}

type inMemoryQuota struct {
	mu                sync.Mutex
	defaultLimitBytes int64
	used              map[string]int64
	ledger            map[string]struct{}
}

func (g *inMemoryQuota) CheckUploadAllowed(ctx context.Context, userID string, sizeBytes int64) (quota.Decision, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.defaultLimitBytes - g.used[userID]
	if remaining < 0 {
		remaining = 0
	}
	return quota.Decision{
		Allowed:        sizeBytes <= remaining,
		RequestedBytes: sizeBytes,
		RemainingBytes: remaining,
	}, nil
}

func (g *inMemoryQuota) CommitUsage(ctx context.Context, userID string, sizeBytes int64, objectKey string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, charged := g.ledger[objectKey]; charged {
		return nil
	}
	g.ledger[objectKey] = struct{}{}
	g.used[userID] += sizeBytes
	return nil
}
