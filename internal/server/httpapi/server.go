// Package httpapi wires the upload protocol services into an HTTP server.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/filedrop/internal/logging"
)

// Server owns the http.Server and its routes.
type Server struct {
	srv    *http.Server
	logger logging.Logger
}

// NewServer builds the router. Signed-fallback and health routes skip the
// bearer middleware; everything else requires an authenticated user.
func NewServer(addr string, handler *Handler, authMW *AuthMiddleware, logger logging.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handler.Health)

	mux.Handle("POST /api/files/upload-url", authMW.RequireAuth(http.HandlerFunc(handler.UploadURL)))
	mux.Handle("POST /api/files/finalize", authMW.RequireAuth(http.HandlerFunc(handler.Finalize)))
	mux.Handle("GET /api/files/{fileID}/download-url", authMW.RequireAuth(http.HandlerFunc(handler.DownloadURL)))
	mux.Handle("GET /api/files/{fileID}/preview-url", authMW.RequireAuth(http.HandlerFunc(handler.PreviewURL)))

	// Authorization travels in the query string here.
	mux.HandleFunc("GET /api/files/{fileID}/{action}", handler.SignedAction)

	mux.Handle("POST /api/multipart/initiate", authMW.RequireAuth(http.HandlerFunc(handler.MultipartInitiate)))
	mux.Handle("POST /api/multipart/chunk-url", authMW.RequireAuth(http.HandlerFunc(handler.MultipartChunkURL)))
	mux.Handle("POST /api/multipart/complete", authMW.RequireAuth(http.HandlerFunc(handler.MultipartComplete)))
	mux.Handle("POST /api/multipart/abort", authMW.RequireAuth(http.HandlerFunc(handler.MultipartAbort)))

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info(ctx, "http server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}
