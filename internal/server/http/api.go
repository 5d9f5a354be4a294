package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/services"
	"github.com/go-chi/chi/v5"
)

// maxBodyBytes bounds request bodies; batches are metadata only.
const maxBodyBytes = 1 << 20

func queryParam(r *http.Request) (string, error) {
	q := r.URL.Query()
	if !q.Has("q") {
		return "", common.Malformed("missing query parameter q")
	}
	return q.Get("q"), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return common.Malformed("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) searchBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := queryParam(r)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	found, err := h.uploads.SearchBatches(ctx, q)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	out := make([]batchJSON, 0, len(found))
	for _, b := range found {
		out = append(out, toBatchJSON(b))
	}
	writeJSON(w, http.StatusOK, result[[]batchJSON]{Result: out})
}

func (h *Handler) getBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(ctx, h.logger, w, common.Malformed("batch id must be an integer"))
		return
	}
	b, err := h.uploads.GetBatch(ctx, id)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchJSON(*b))
}

func (h *Handler) uploadBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body uploadBody
	if err := decodeBody(w, r, &body); err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	res, err := h.uploads.UploadBatch(ctx, auth.CallerFromContext(ctx), body.request(), r.URL.Query().Get("region"))
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, result[uploadResultJSON]{Result: toUploadResultJSON(res)})
}

func (h *Handler) uploadComplete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.uploads.MarkUploadComplete(ctx, chi.URLParam(r, "digest")); err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, struct{}{})
}

func (h *Handler) searchFiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q, err := queryParam(r)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	found, err := h.files.SearchFiles(ctx, q)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	out := make([]fileJSON, 0, len(found))
	for _, f := range found {
		out = append(out, toFileJSON(f))
	}
	writeJSON(w, http.StatusOK, result[[]fileJSON]{Result: out})
}

func (h *Handler) getFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	f, err := h.files.GetFile(ctx, chi.URLParam(r, "digest"))
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileDetailJSON(*f))
}

func (h *Handler) patchFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var body []patchOpJSON
	if err := decodeBody(w, r, &body); err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	ops := make([]services.PatchOp, 0, len(body))
	for _, op := range body {
		ops = append(ops, services.PatchOp{Op: op.Op, Visibility: models.Visibility(op.Visibility)})
	}
	f, err := h.files.PatchFile(ctx, auth.CallerFromContext(ctx), chi.URLParam(r, "digest"), ops)
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileDetailJSON(*f))
}

func (h *Handler) downloadFile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	u, err := h.downloads.DownloadFile(ctx, auth.CallerFromContext(ctx), chi.URLParam(r, "digest"), r.URL.Query().Get("region"))
	if err != nil {
		writeError(ctx, h.logger, w, err)
		return
	}
	http.Redirect(w, r, u, http.StatusFound)
}
