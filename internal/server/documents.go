package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bidline/internal/documents"
	"bidline/internal/engine"
)

// registerDocuments mounts the upload and download routes directly on the
// router: uploads are multipart and downloads stream raw bytes. Downloads
// are limited to the uploader and the parties of the engagement that cites
// the document.
func registerDocuments(r chi.Router, basePath string, e engine.Engine, store documents.FileStore) {
	r.Post(path.Join(basePath, "documents"), func(w http.ResponseWriter, req *http.Request) {
		actor, authErr := actorFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		// Leave room for the multipart envelope around the file.
		if err := req.ParseMultipartForm(store.MaxBytes + 1<<20); err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "multipart form with a file field required", map[string]any{"error": err.Error()}))
			return
		}
		file, header, err := req.FormFile("file")
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "file is required", nil))
			return
		}
		defer file.Close()
		content, err := io.ReadAll(file)
		if err != nil {
			respondStatusError(w, newAPIError(http.StatusBadRequest, "bad_request", "unreadable file", map[string]any{"error": err.Error()}))
			return
		}
		kind := req.FormValue("kind")
		if kind == "" {
			kind = documents.KindWork
		}
		ref, err := store.Store(req.Context(), content, kind, header.Filename)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		if _, err := e.RecordDocument(req.Context(), ref, kind, actor.ID, int64(len(content))); err != nil {
			_ = store.Remove(ref)
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(DocumentResponse{
			Ref:         ref,
			ContentType: documents.ContentType(ref),
			Size:        int64(len(content)),
		})
	})

	r.Get(path.Join(basePath, "documents")+"/*", func(w http.ResponseWriter, req *http.Request) {
		actor, authErr := actorFromContext(req.Context())
		if authErr != nil {
			respondStatusError(w, authErr)
			return
		}
		ref := chi.URLParam(req, "*")
		if _, err := e.DocumentAccess(req.Context(), ref, actor); err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		rc, size, err := store.Open(ref)
		if err != nil {
			respondStatusError(w, handleError(err))
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", documents.ContentType(ref))
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
		w.Header().Set("Content-Disposition", `attachment; filename="`+path.Base(ref)+`"`)
		_, _ = io.Copy(w, rc)
	})
}
