package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filedrop/internal/common"
	sc "github.com/dmitrijs2005/filedrop/internal/server/config"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
	"github.com/dmitrijs2005/filedrop/internal/server/objectstore"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/repomanager"
)

// MultipartService owns the lifecycle of chunked uploads: initiation,
// per-chunk authorization, and completion. Sessions live in the shared
// database, so any server instance can serve any step.
type MultipartService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	store    objectstore.Store
	finalize *FinalizeService
	config   *sc.Config
}

func NewMultipartService(db *sql.DB, repos repomanager.RepositoryManager, store objectstore.Store, finalize *FinalizeService, config *sc.Config) *MultipartService {
	return &MultipartService{db: db, repos: repos, store: store, finalize: finalize, config: config}
}

// Initiate checks quota for the declared size, opens a store-side multipart
// upload and creates the session record in the initiated state.
func (s *MultipartService) Initiate(ctx context.Context, userID, fileName, mimeType string, fileSize, chunkSize int64, folderID string) (*models.UploadSession, error) {
	if fileSize <= 0 {
		return nil, fmt.Errorf("%w: file size must be positive", common.ErrorValidation)
	}
	name := SanitizeFileName(fileName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", common.ErrorValidation)
	}
	if chunkSize <= 0 {
		chunkSize = s.config.DefaultChunkSize
	}

	decision, err := s.repos.Quota(s.db).CheckUploadAllowed(ctx, userID, fileSize)
	if err != nil {
		return nil, fmt.Errorf("quota check error: %w", err)
	}
	if !decision.Allowed {
		return nil, &common.QuotaExceededError{
			RequestedBytes: decision.RequestedBytes,
			RemainingBytes: decision.RemainingBytes,
		}
	}

	key := ObjectKey(userID, name)
	uploadID, err := s.store.CreateMultipart(ctx, key, mimeType)
	if err != nil {
		return nil, fmt.Errorf("create multipart error: %w", err)
	}

	now := timeNow()
	session := &models.UploadSession{
		ID:               uuid.NewString(),
		OwnerID:          userID,
		ObjectKey:        key,
		StoreUploadID:    uploadID,
		DeclaredSize:     fileSize,
		DeclaredMimeType: mimeType,
		FolderID:         folderID,
		ChunkSize:        chunkSize,
		Status:           models.SessionInitiated,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.config.SessionTTL),
	}
	if err := s.repos.Sessions(s.db).Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session error: %w", err)
	}
	return session, nil
}

// ChunkURL authorizes uploading one part. Parts may be requested in any
// order, concurrently, and more than once; only the reported part set at
// completion time matters. A non-zero chunkSize must repeat the size the
// session was initiated with, so a client drifting from its own session
// settings is caught before it uploads misaligned ranges.
func (s *MultipartService) ChunkURL(ctx context.Context, userID, sessionID string, partNumber int32, chunkSize int64) (*objectstore.PresignedRequest, error) {
	if partNumber < 1 {
		return nil, fmt.Errorf("%w: part number must be >= 1", common.ErrorValidation)
	}
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if chunkSize != 0 && chunkSize != session.ChunkSize {
		return nil, fmt.Errorf("%w: chunk size %d does not match session chunk size %d", common.ErrorValidation, chunkSize, session.ChunkSize)
	}
	if session.Status != models.SessionInitiated || session.Expired(timeNow()) {
		return nil, common.ErrSessionClosed
	}

	req, err := s.store.PresignUploadPart(ctx, session.ObjectKey, session.StoreUploadID, partNumber, s.config.ChunkURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign chunk error: %w", err)
	}
	return req, nil
}

// Complete validates the reported part set, claims the session and delegates
// store-side assembly and record commit to the finalization coordinator.
// Calling it again after success returns the committed record; calling it
// again after an assembly failure retries assembly.
func (s *MultipartService) Complete(ctx context.Context, userID, sessionID string, parts []models.UploadPart) (*models.FileRecord, error) {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}

	switch session.Status {
	case models.SessionCompleted:
		return s.repos.Files(s.db).GetByObjectKey(ctx, session.ObjectKey)
	case models.SessionAborted:
		return nil, common.ErrSessionClosed
	}
	if session.Expired(timeNow()) {
		return nil, common.ErrSessionClosed
	}

	if err := validatePartSet(session, parts); err != nil {
		return nil, err
	}

	if session.Status == models.SessionInitiated {
		claimed, err := s.repos.Sessions(s.db).Claim(ctx, session.ID, parts)
		if err != nil {
			return nil, fmt.Errorf("claim session error: %w", err)
		}
		if !claimed {
			// Lost the race. Re-read to learn what happened.
			session, err = s.ownedSession(ctx, userID, sessionID)
			if err != nil {
				return nil, err
			}
			switch session.Status {
			case models.SessionCompleted:
				return s.repos.Files(s.db).GetByObjectKey(ctx, session.ObjectKey)
			case models.SessionCompleting:
				// A concurrent attempt claimed it; finalize is idempotent,
				// so proceeding here is safe.
			default:
				return nil, common.ErrSessionClosed
			}
		}
	}

	return s.finalize.FinalizeMultipart(ctx, session, parts)
}

// Abort closes an open session and makes a best-effort attempt to discard the
// store-side multipart state.
func (s *MultipartService) Abort(ctx context.Context, userID, sessionID string) error {
	session, err := s.ownedSession(ctx, userID, sessionID)
	if err != nil {
		return err
	}

	var moved bool
	for _, from := range []models.SessionStatus{models.SessionInitiated, models.SessionCompleting} {
		moved, err = s.repos.Sessions(s.db).Transition(ctx, session.ID, from, models.SessionAborted)
		if err != nil {
			return fmt.Errorf("session transition error: %w", err)
		}
		if moved {
			break
		}
	}
	if !moved {
		return common.ErrSessionClosed
	}

	// Best effort; expired uploads are also reclaimed by the cleanup loop.
	_ = s.store.AbortMultipart(ctx, session.ObjectKey, session.StoreUploadID)
	return nil
}

// CleanupExpired aborts sessions whose TTL elapsed. It is only needed for
// eventual reclamation of store-side state; correctness never depends on it
// because expiry is re-checked lazily on every session use.
func (s *MultipartService) CleanupExpired(ctx context.Context, limit int) (int, error) {
	expired, err := s.repos.Sessions(s.db).SelectExpired(ctx, timeNow(), limit)
	if err != nil {
		return 0, fmt.Errorf("select expired error: %w", err)
	}

	var n int
	for _, session := range expired {
		moved, err := s.repos.Sessions(s.db).Transition(ctx, session.ID, session.Status, models.SessionAborted)
		if err != nil {
			return n, fmt.Errorf("session transition error: %w", err)
		}
		if !moved {
			continue
		}
		_ = s.store.AbortMultipart(ctx, session.ObjectKey, session.StoreUploadID)
		n++
	}
	return n, nil
}

// ownedSession loads a session and hides sessions of other owners behind
// ErrSessionNotFound.
func (s *MultipartService) ownedSession(ctx context.Context, userID, sessionID string) (*models.UploadSession, error) {
	session, err := s.repos.Sessions(s.db).Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OwnerID != userID {
		return nil, common.ErrSessionNotFound
	}
	return session, nil
}

// validatePartSet requires the reported parts to be exactly {1..N} for the
// part count implied by the declared size and chunk size, with no duplicates.
func validatePartSet(session *models.UploadSession, parts []models.UploadPart) error {
	expected := session.ExpectedPartCount()

	seen := make(map[int32]int, len(parts))
	var duplicate []int32
	for _, p := range parts {
		seen[p.PartNumber]++
		if seen[p.PartNumber] == 2 {
			duplicate = append(duplicate, p.PartNumber)
		}
	}

	var missing []int32
	for n := int32(1); n <= int32(expected); n++ {
		if seen[n] == 0 {
			missing = append(missing, n)
		}
	}

	var stray []int32
	for n := range seen {
		if n < 1 || n > int32(expected) {
			stray = append(stray, n)
		}
	}

	if len(missing) == 0 && len(duplicate) == 0 && len(stray) == 0 {
		return nil
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	sort.Slice(duplicate, func(i, j int) bool { return duplicate[i] < duplicate[j] })
	duplicate = append(duplicate, stray...)
	sort.Slice(duplicate, func(i, j int) bool { return duplicate[i] < duplicate[j] })
	return &common.IncompletePartSetError{Missing: missing, Duplicate: duplicate}
}
