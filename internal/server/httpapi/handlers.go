package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/common"
	"github.com/dmitrijs2005/filedrop/internal/logging"
	"github.com/dmitrijs2005/filedrop/internal/server/models"
	"github.com/dmitrijs2005/filedrop/internal/server/services"
	"github.com/dmitrijs2005/filedrop/internal/server/sign"
)

// Handler exposes the upload protocol over HTTP.
type Handler struct {
	upload    *services.UploadService
	multipart *services.MultipartService
	finalize  *services.FinalizeService
	logger    logging.Logger
}

func NewHandler(upload *services.UploadService, multipart *services.MultipartService, finalize *services.FinalizeService, logger logging.Logger) *Handler {
	return &Handler{upload: upload, multipart: multipart, finalize: finalize, logger: logger}
}

type uploadURLRequest struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
	FolderID string `json:"folder_id,omitempty"`
}

type uploadURLResponse struct {
	UploadURL string              `json:"upload_url"`
	Method    string              `json:"method"`
	Header    map[string][]string `json:"header,omitempty"`
	ObjectKey string              `json:"object_key"`
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expires_at"`
}

func (h *Handler) UploadURL(w http.ResponseWriter, r *http.Request) {
	var req uploadURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	authz, err := h.upload.GenerateUploadURL(r.Context(), UserFromContext(r.Context()), req.FileName, req.MimeType, req.FileSize, req.FolderID)
	if err != nil {
		h.fail(w, r, "generate upload url", err)
		return
	}

	writeData(w, http.StatusOK, uploadURLResponse{
		UploadURL: authz.UploadURL,
		Method:    authz.Method,
		Header:    authz.Header,
		ObjectKey: authz.ObjectKey,
		Token:     authz.Token,
		ExpiresAt: authz.ExpiresAt,
	})
}

type finalizeRequest struct {
	ObjectKey string `json:"object_key"`
	ETag      string `json:"etag"`
	Token     string `json:"token"`
	MimeType  string `json:"mime_type,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
}

func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	record, err := h.finalize.FinalizeDirect(r.Context(), UserFromContext(r.Context()), &services.FinalizeRequest{
		ObjectKey: req.ObjectKey,
		ETag:      req.ETag,
		Token:     req.Token,
		MimeType:  req.MimeType,
		FolderID:  req.FolderID,
	})
	if err != nil {
		h.fail(w, r, "finalize", err)
		return
	}
	writeData(w, http.StatusOK, fileRecordDTO(record))
}

func (h *Handler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	link, err := h.upload.GenerateDownloadURL(r.Context(), UserFromContext(r.Context()), r.PathValue("fileID"))
	if err != nil {
		h.fail(w, r, "generate download url", err)
		return
	}
	writeData(w, http.StatusOK, linkDTO(link))
}

func (h *Handler) PreviewURL(w http.ResponseWriter, r *http.Request) {
	link, err := h.upload.GeneratePreviewURL(r.Context(), UserFromContext(r.Context()), r.PathValue("fileID"))
	if err != nil {
		h.fail(w, r, "generate preview url", err)
		return
	}
	writeData(w, http.StatusOK, linkDTO(link))
}

// SignedAction serves the generic signed-URL fallback. It carries its own
// authorization in the query string, so it bypasses the bearer middleware.
func (h *Handler) SignedAction(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileID")
	action := sign.Action(r.PathValue("action"))
	switch action {
	case sign.ActionDownload, sign.ActionPreview, sign.ActionStream:
	default:
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	query := r.URL.Query()
	expires, err := strconv.ParseInt(query.Get("expires"), 10, 64)
	if err != nil {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	record, err := h.upload.VerifySignedAction(r.Context(), fileID, query.Get("user"), action, expires, query.Get("signature"))
	if err != nil {
		h.fail(w, r, "verify signed action", err)
		return
	}

	link, err := h.upload.GenerateDownloadURL(r.Context(), record.OwnerID, record.ID)
	if err != nil {
		h.fail(w, r, "generate store link", err)
		return
	}
	http.Redirect(w, r, link.URL, http.StatusSeeOther)
}

type initiateRequest struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	FileSize  int64  `json:"file_size"`
	ChunkSize int64  `json:"chunk_size,omitempty"`
	FolderID  string `json:"folder_id,omitempty"`
}

type initiateResponse struct {
	SessionID string    `json:"session_id"`
	ObjectKey string    `json:"object_key"`
	ChunkSize int64     `json:"chunk_size"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) MultipartInitiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.multipart.Initiate(r.Context(), UserFromContext(r.Context()), req.FileName, req.MimeType, req.FileSize, req.ChunkSize, req.FolderID)
	if err != nil {
		h.fail(w, r, "initiate multipart", err)
		return
	}

	writeData(w, http.StatusOK, initiateResponse{
		SessionID: session.ID,
		ObjectKey: session.ObjectKey,
		ChunkSize: session.ChunkSize,
		ExpiresAt: session.ExpiresAt,
	})
}

type chunkURLRequest struct {
	SessionID  string `json:"session_id"`
	PartNumber int32  `json:"part_number"`
	// ChunkSize is optional; when present it must match the session.
	ChunkSize int64 `json:"chunk_size,omitempty"`
}

type chunkURLResponse struct {
	UploadURL string    `json:"upload_url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) MultipartChunkURL(w http.ResponseWriter, r *http.Request) {
	var req chunkURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	presigned, err := h.multipart.ChunkURL(r.Context(), UserFromContext(r.Context()), req.SessionID, req.PartNumber, req.ChunkSize)
	if err != nil {
		h.fail(w, r, "generate chunk url", err)
		return
	}

	writeData(w, http.StatusOK, chunkURLResponse{
		UploadURL: presigned.URL,
		Method:    presigned.Method,
		ExpiresAt: presigned.ExpiresAt,
	})
}

type completeRequest struct {
	SessionID string `json:"session_id"`
	Parts     []struct {
		PartNumber int32  `json:"part_number"`
		ETag       string `json:"etag"`
	} `json:"parts"`
}

func (h *Handler) MultipartComplete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	parts := make([]models.UploadPart, 0, len(req.Parts))
	for _, p := range req.Parts {
		parts = append(parts, models.UploadPart{PartNumber: p.PartNumber, ETag: p.ETag})
	}

	record, err := h.multipart.Complete(r.Context(), UserFromContext(r.Context()), req.SessionID, parts)
	if err != nil {
		h.fail(w, r, "complete multipart", err)
		return
	}
	writeData(w, http.StatusOK, fileRecordDTO(record))
}

type abortRequest struct {
	SessionID string `json:"session_id"`
}

func (h *Handler) MultipartAbort(w http.ResponseWriter, r *http.Request) {
	var req abortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.multipart.Abort(r.Context(), UserFromContext(r.Context()), req.SessionID); err != nil {
		h.fail(w, r, "abort multipart", err)
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	// Client-attributable failures stay at warn level.
	if clientError(err) {
		h.logger.Warn(r.Context(), op+" rejected", "error", err.Error())
	} else {
		h.logger.Error(r.Context(), op+" failed", "error", err.Error())
	}
	writeDomainError(w, err)
}

func clientError(err error) bool {
	for _, target := range []error{
		common.ErrorValidation, common.ErrorNotFound, common.ErrSessionNotFound,
		common.ErrSessionClosed, common.ErrQuotaExceeded, common.ErrIncompletePartSet,
		common.ErrInvalidSignature, common.ErrTokenExpired, common.ErrMalformedToken,
		common.ErrInvalidToken, common.ErrorUnauthorized,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

type fileRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	MimeType  string    `json:"mime_type"`
	Size      int64     `json:"size"`
	ObjectKey string    `json:"object_key"`
	ETag      string    `json:"etag"`
	FolderID  string    `json:"folder_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func fileRecordDTO(r *models.FileRecord) fileRecord {
	return fileRecord{
		ID:        r.ID,
		Name:      r.Name,
		MimeType:  r.MimeType,
		Size:      r.Size,
		ObjectKey: r.ObjectKey,
		ETag:      r.ETag,
		FolderID:  r.FolderID,
		CreatedAt: r.CreatedAt,
	}
}

type signedLink struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

func linkDTO(l *services.SignedLink) signedLink {
	return signedLink{URL: l.URL, ExpiresAt: l.ExpiresAt}
}
