package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filedrop/internal/common"
	"github.com/dmitrijs2005/filedrop/internal/dbx"
	sc "github.com/dmitrijs2005/filedrop/internal/server/config"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
	"github.com/dmitrijs2005/filedrop/internal/server/objectstore"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filedrop/internal/server/sign"
)

// FinalizeRequest carries what a client submits to register a finished
// single-shot upload.
type FinalizeRequest struct {
	ObjectKey string
	ETag      string
	// Token is the upload token returned by GenerateUploadURL. It proves
	// the caller was authorized for exactly this key.
	Token    string
	MimeType string
	FolderID string
}

// FinalizeService turns a completed object-store write into a consistent,
// quota-checked metadata record, exactly once per object key.
type FinalizeService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  objectstore.Store
	codec  *sign.Codec
	config *sc.Config
}

func NewFinalizeService(db *sql.DB, repos repomanager.RepositoryManager, store objectstore.Store, codec *sign.Codec, config *sc.Config) *FinalizeService {
	return &FinalizeService{db: db, repos: repos, store: store, codec: codec, config: config}
}

// FinalizeDirect registers a single-shot upload: it authenticates the upload
// token, confirms the object with the store, re-checks quota against the
// actual stored size, and commits the record. Safe to call twice with the
// same arguments; the second call returns the already-committed record.
func (s *FinalizeService) FinalizeDirect(ctx context.Context, userID string, req *FinalizeRequest) (*models.FileRecord, error) {
	claims, err := s.codec.Verify(req.Token)
	if err != nil {
		return nil, err
	}
	if claims.Action != sign.ActionUpload || claims.SubjectID != req.ObjectKey || claims.ActorID != userID {
		return nil, common.ErrorUnauthorized
	}

	info, err := s.store.Head(ctx, req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("store verification error: %w", err)
	}
	if !info.Exists {
		return nil, fmt.Errorf("%w: object was not uploaded", common.ErrAssemblyFailed)
	}
	if req.ETag != "" && trimETag(req.ETag) != trimETag(info.ETag) {
		return nil, fmt.Errorf("%w: etag mismatch", common.ErrAssemblyFailed)
	}

	record := &models.FileRecord{
		ID:        uuid.NewString(),
		OwnerID:   userID,
		FolderID:  req.FolderID,
		Name:      nameFromObjectKey(req.ObjectKey),
		MimeType:  req.MimeType,
		Size:      info.Size,
		ObjectKey: req.ObjectKey,
		ETag:      trimETag(info.ETag),
	}
	return s.commit(ctx, record)
}

// FinalizeMultipart verifies store-side assembly for a claimed session and
// commits the record. The session is left in completing on assembly failure
// so the client can retry with the same verified part set.
func (s *FinalizeService) FinalizeMultipart(ctx context.Context, session *models.UploadSession, parts []models.UploadPart) (*models.FileRecord, error) {
	// A retry after a failure between assembly and commit finds the object
	// already assembled; skip the store call then, it would fail since the
	// multipart upload no longer exists.
	info, err := s.store.Head(ctx, session.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("store verification error: %w", err)
	}
	if !info.Exists {
		completed := make([]objectstore.CompletedPart, 0, len(parts))
		for _, p := range parts {
			completed = append(completed, objectstore.CompletedPart{PartNumber: p.PartNumber, ETag: p.ETag})
		}
		if _, err := s.store.CompleteMultipart(ctx, session.ObjectKey, session.StoreUploadID, completed); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrAssemblyFailed, err)
		}
		info, err = s.store.Head(ctx, session.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("store verification error: %w", err)
		}
		if !info.Exists {
			return nil, fmt.Errorf("%w: assembled object missing", common.ErrAssemblyFailed)
		}
	}

	record := &models.FileRecord{
		ID:        uuid.NewString(),
		OwnerID:   session.OwnerID,
		FolderID:  session.FolderID,
		Name:      nameFromObjectKey(session.ObjectKey),
		MimeType:  session.DeclaredMimeType,
		Size:      info.Size,
		ObjectKey: session.ObjectKey,
		ETag:      trimETag(info.ETag),
	}

	result, err := s.commit(ctx, record)
	if err != nil {
		return nil, err
	}

	// Exactly one caller wins this transition; a racing retry observing
	// moved=false has nothing left to do because the record is committed.
	if _, err := s.repos.Sessions(s.db).Transition(ctx, session.ID, models.SessionCompleting, models.SessionCompleted); err != nil {
		return nil, fmt.Errorf("session transition error: %w", err)
	}
	return result, nil
}

// commit re-checks quota against the actual stored size, then writes the
// record and the usage charge in one transaction. The unique index on
// object_key makes the whole operation at-most-once: a duplicate key is the
// success path and never re-charges quota.
func (s *FinalizeService) commit(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error) {
	// An object already finalized must not be quota-checked again, or a
	// legitimate retry could fail after the quota filled up.
	if existing, err := s.repos.Files(s.db).GetByObjectKey(ctx, record.ObjectKey); err == nil {
		return existing, nil
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	decision, err := s.repos.Quota(s.db).CheckUploadAllowed(ctx, record.OwnerID, record.Size)
	if err != nil {
		return nil, fmt.Errorf("quota check error: %w", err)
	}
	if !decision.Allowed {
		// The stored bytes become an orphan for the reconciliation job;
		// the error is surfaced, never swallowed.
		return nil, &common.QuotaExceededError{
			RequestedBytes: decision.RequestedBytes,
			RemainingBytes: decision.RemainingBytes,
		}
	}

	var result *models.FileRecord
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		_, committed, err := s.repos.Files(tx).InsertIfAbsent(ctx, record)
		if err != nil {
			return err
		}
		if err := s.repos.Quota(tx).CommitUsage(ctx, committed.OwnerID, committed.Size, committed.ObjectKey); err != nil {
			return err
		}
		result = committed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("finalize commit error: %w", err)
	}
	return result, nil
}

func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// nameFromObjectKey recovers the sanitized display name from a derived key
// (everything after the uuid prefix in the final path segment).
func nameFromObjectKey(key string) string {
	base := key
	if i := strings.LastIndex(key, "/"); i >= 0 {
		base = key[i+1:]
	}
	// Keys are minted as "<uuid>-<name>"; a uuid is 36 characters.
	if len(base) > 37 && base[36] == '-' {
		if _, err := uuid.Parse(base[:36]); err == nil {
			return base[37:]
		}
	}
	return base
}
