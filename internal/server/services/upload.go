// Package services implements the upload protocol: single-shot upload
// authorization, multipart session management and upload finalization.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filedrop/internal/common"
	sc "github.com/dmitrijs2005/filedrop/internal/server/config"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
	"github.com/dmitrijs2005/filedrop/internal/server/objectstore"
	"github.com/dmitrijs2005/filedrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/filedrop/internal/server/sign"
)

// UploadAuthorization is a one-shot pre-signed write authorization for a
// single object key. The client uploads directly to the store and then calls
// finalize with the token to register the object.
type UploadAuthorization struct {
	UploadURL string
	Method    string
	Header    map[string][]string
	ObjectKey string
	Token     string
	ExpiresAt time.Time
}

// SignedLink is a time-boxed read authorization.
type SignedLink struct {
	URL       string
	ExpiresAt time.Time
}

// UploadService issues upload and download authorizations.
type UploadService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	store  objectstore.Store
	codec  *sign.Codec
	config *sc.Config
}

func NewUploadService(db *sql.DB, repos repomanager.RepositoryManager, store objectstore.Store, codec *sign.Codec, config *sc.Config) *UploadService {
	return &UploadService{db: db, repos: repos, store: store, codec: codec, config: config}
}

// GenerateUploadURL checks quota for the declared size and mints a pre-signed
// PUT scoped to a deterministic object key plus an upload token the client
// must echo at finalization. No URL is minted when quota would be exceeded.
func (s *UploadService) GenerateUploadURL(ctx context.Context, userID, fileName, mimeType string, fileSize int64, folderID string) (*UploadAuthorization, error) {
	if fileSize <= 0 {
		return nil, fmt.Errorf("%w: file size must be positive", common.ErrorValidation)
	}
	name := SanitizeFileName(fileName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", common.ErrorValidation)
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
	req, err := s.store.PresignPut(ctx, key, mimeType, fileSize, s.config.UploadURLTTL)
	if err != nil {
		return nil, fmt.Errorf("presign error: %w", err)
	}

	token, expiresAt := s.codec.Issue(key, userID, sign.ActionUpload, s.config.UploadURLTTL)

	return &UploadAuthorization{
		UploadURL: req.URL,
		Method:    req.Method,
		Header:    req.Header,
		ObjectKey: key,
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// GenerateDownloadURL returns a pre-signed GET for a file the caller owns.
// A missing file and a file owned by someone else are both reported as
// common.ErrorNotFound so callers cannot probe for other users' files.
func (s *UploadService) GenerateDownloadURL(ctx context.Context, userID, fileID string) (*SignedLink, error) {
	return s.readLink(ctx, userID, fileID, s.config.DownloadURLTTL)
}

// GeneratePreviewURL is GenerateDownloadURL with the shorter preview TTL.
func (s *UploadService) GeneratePreviewURL(ctx context.Context, userID, fileID string) (*SignedLink, error) {
	return s.readLink(ctx, userID, fileID, s.config.PreviewURLTTL)
}

func (s *UploadService) readLink(ctx context.Context, userID, fileID string, ttl time.Duration) (*SignedLink, error) {
	record, err := s.authorizedFile(ctx, userID, fileID)
	if err != nil {
		return nil, err
	}
	req, err := s.store.PresignGet(ctx, record.ObjectKey, ttl)
	if err != nil {
		return nil, fmt.Errorf("presign error: %w", err)
	}
	return &SignedLink{URL: req.URL, ExpiresAt: req.ExpiresAt}, nil
}

// GenerateActionURL mints a signed server-relative URL for the generic
// fallback endpoint (download/preview/stream served by the server itself
// rather than the object store).
func (s *UploadService) GenerateActionURL(ctx context.Context, userID, fileID string, action sign.Action) (*SignedLink, error) {
	if _, err := s.authorizedFile(ctx, userID, fileID); err != nil {
		return nil, err
	}
	expiresAt := timeNow().Add(s.config.DownloadURLTTL).Truncate(time.Second)
	signature := s.codec.Signature(fileID, userID, action, expiresAt)
	url := fmt.Sprintf("/api/files/%s/%s?signature=%s&expires=%d&user=%s",
		fileID, action, signature, expiresAt.Unix(), userID)
	return &SignedLink{URL: url, ExpiresAt: expiresAt}, nil
}

// VerifySignedAction authenticates the query parameters of a fallback URL and
// returns the referenced file. Token failures propagate as the sign package's
// errors; ownership failures collapse to common.ErrorNotFound.
func (s *UploadService) VerifySignedAction(ctx context.Context, fileID, userID string, action sign.Action, expiresUnix int64, signature string) (*models.FileRecord, error) {
	if err := s.codec.VerifyDetached(fileID, userID, action, time.Unix(expiresUnix, 0), signature); err != nil {
		return nil, err
	}
	return s.authorizedFile(ctx, userID, fileID)
}

func (s *UploadService) authorizedFile(ctx context.Context, userID, fileID string) (*models.FileRecord, error) {
	record, err := s.repos.Files(s.db).GetByID(ctx, fileID)
	if err != nil {
		return nil, err
	}
	if record.OwnerID != userID {
		// Foreign files look exactly like missing ones.
		return nil, common.ErrorNotFound
	}
	return record, nil
}

// timeNow is a seam for tests.
var timeNow = time.Now

// ObjectKey derives the store path for a new upload. The random component
// prevents collisions; the sanitized name keeps keys traversal-safe.
func ObjectKey(userID, sanitizedName string) string {
	return fmt.Sprintf("users/%s/%s-%s", userID, uuid.New(), sanitizedName)
}

// SanitizeFileName strips path separators and control characters so a
// client-supplied name can never influence the key's directory structure.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r == '/' || r == '\\' || r == 0:
			continue
		case unicode.IsControl(r):
			continue
		default:
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
