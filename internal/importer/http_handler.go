package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/auth"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/mapping"
)

// Handler exposes the import service over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler routes:
//
//	POST /imports                 run an import (multipart "file", optional "mapping" or "mappingName",
//	                              batchSize, resumeFromRow, maxErrorPercentage, dryRun, ...)
//	POST /imports/preview         preview the first rows of a file
//	POST /mappings/suggest        suggest a mapping for a file ("save" stores it)
//	GET  /mappings                saved mappings (entityType)
//	GET  /imports                 recent batches (limit, offset)
//	GET  /imports/{id}            batch status
//	GET  /imports/{id}/errors     stored errors (limit, offset)
//	POST /imports/{id}/rollback   roll a batch back
func NewHTTPHandler(service *Service) http.Handler {
	return &Handler{service: service}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/mappings/suggest"):
		h.handleSuggest(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/imports/preview"):
		h.handlePreview(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/rollback"):
		h.handleRollback(w, r, path)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/errors"):
		h.handleErrors(w, r, path)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/imports"):
		h.handleImport(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/imports"):
		h.handleListBatches(w, r)
	case r.Method == http.MethodGet && strings.HasSuffix(path, "/mappings"):
		h.handleListMappings(w, r)
	case r.Method == http.MethodGet && strings.Contains(path, "/imports/"):
		h.handleStatus(w, r, path)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (h *Handler) handleImport(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opts := h.service.Options()
	opts.DryRun = formBool(r, "dryRun")
	opts.SkipMasterData = formBool(r, "skipMasterData")
	opts.CreatedBy = strings.TrimSpace(r.FormValue("createdBy"))
	if user, ok := auth.UserFromContext(r.Context()); ok {
		opts.CreatedBy = user
	}
	if v := strings.TrimSpace(r.FormValue("batchSize")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid batchSize: %v", err), http.StatusBadRequest)
			return
		}
		opts.BatchSize = n
	}
	if v := strings.TrimSpace(r.FormValue("resumeFromRow")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid resumeFromRow: %v", err), http.StatusBadRequest)
			return
		}
		opts.ResumeFromRow = n
	}
	if v := strings.TrimSpace(r.FormValue("maxErrorPercentage")); v != "" {
		pct, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid maxErrorPercentage: %v", err), http.StatusBadRequest)
			return
		}
		opts.MaxErrorPercentage = pct
	}
	if v := r.FormValue("generateAccounting"); v != "" {
		opts.GenerateAccounting = formBool(r, "generateAccounting")
	}

	res := h.service.ImportFromFile(r.Context(), req, opts)
	writeResult(w, res)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rows := DefaultPreviewRows
	if v := strings.TrimSpace(r.FormValue("rows")); v != "" {
		if rows, err = strconv.Atoi(v); err != nil {
			http.Error(w, fmt.Sprintf("invalid rows: %v", err), http.StatusBadRequest)
			return
		}
	}
	writeResult(w, h.service.Preview(r.Context(), req, rows))
}

func (h *Handler) handleSuggest(w http.ResponseWriter, r *http.Request) {
	req, err := h.readRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sug, table, err := h.service.Suggest(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	m := sug.ToMapping(req.Name)
	if formBool(r, "save") {
		if err := h.service.SaveMapping(r.Context(), m); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"headers":    table.Headers,
		"rows":       len(table.Rows),
		"suggestion": sug,
		"mapping":    m,
	})
}

func (h *Handler) handleListBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := h.service.Batches(r.Context(), queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, batches)
}

func (h *Handler) handleListMappings(w http.ResponseWriter, r *http.Request) {
	ms, err := h.service.Mappings(r.Context(), strings.TrimSpace(r.URL.Query().Get("entityType")))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request, path string) {
	id, err := batchID(path, "")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeResult(w, h.service.Status(r.Context(), id))
}

func (h *Handler) handleErrors(w http.ResponseWriter, r *http.Request, path string) {
	id, err := batchID(path, "/errors")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit := queryInt(r, "limit", 100)
	offset := queryInt(r, "offset", 0)
	errs, err := h.service.Errors(r.Context(), id, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, errs)
}

func (h *Handler) handleRollback(w http.ResponseWriter, r *http.Request, path string) {
	id, err := batchID(path, "/rollback")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, ok := auth.UserFromContext(r.Context()); ok {
		batch, err := h.service.Batch(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err := auth.EnforceCreator(r.Context(), batch.CreatedBy); err != nil {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
	}
	writeResult(w, h.service.Rollback(r.Context(), id))
}

func (h *Handler) readRequest(r *http.Request) (Request, error) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return Request{}, fmt.Errorf("invalid form data: %v", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return Request{}, fmt.Errorf("file required: %v", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return Request{}, fmt.Errorf("failed to read file: %v", err)
	}
	req := Request{
		Name:     strings.TrimSpace(r.FormValue("name")),
		FileName: header.Filename,
		Data:     bytes.NewReader(data),
	}
	if raw := strings.TrimSpace(r.FormValue("mapping")); raw != "" {
		m, err := mapping.LoadTemplate(strings.NewReader(raw))
		if err != nil {
			return Request{}, fmt.Errorf("invalid mapping: %v", err)
		}
		req.Mapping = m
	} else if name := strings.TrimSpace(r.FormValue("mappingName")); name != "" {
		m, err := h.service.Mapping(r.Context(), name)
		if err != nil {
			return Request{}, err
		}
		req.Mapping = m
	}
	return req, nil
}

func batchID(path, suffix string) (uuid.UUID, error) {
	path = strings.TrimSuffix(path, suffix)
	raw := path[strings.LastIndex(path, "/")+1:]
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid batch id: %v", err)
	}
	return id, nil
}

func formBool(r *http.Request, key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(r.FormValue(key)))
	return v
}

func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return def
	}
	return n
}

// writeResult maps a failed Result to 422 unless nothing was found at all.
func writeResult(w http.ResponseWriter, res domain.Result) {
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
		if res.Data.BatchID == nil && strings.HasSuffix(res.Message, "not found") {
			status = http.StatusNotFound
		}
	}
	writeJSON(w, status, res)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
