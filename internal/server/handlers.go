package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/labshot/labshot/internal/app/compose"
	"github.com/labshot/labshot/internal/app/status"
	"github.com/labshot/labshot/internal/app/submit"
	"github.com/labshot/labshot/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, model.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, model.ErrNotValid), errors.Is(err, model.ErrRejected):
		code = http.StatusBadRequest
	case errors.Is(err, model.ErrAlreadyExists):
		code = http.StatusConflict
	}

	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

type taskRequest struct {
	ID        string            `json:"id,omitempty"`
	Kind      string            `json:"kind"`
	Language  string            `json:"language,omitempty"`
	Source    string            `json:"source,omitempty"`
	Question  string            `json:"question,omitempty"`
	Files     map[string]string `json:"files,omitempty"`
	Routes    []string          `json:"routes,omitempty"`
	Insertion string            `json:"insertion,omitempty"`
}

type submitBatchRequest struct {
	BatchID          string        `json:"batch_id,omitempty"`
	OwnerRef         string        `json:"owner_ref,omitempty"`
	Theme            string        `json:"theme"`
	DefaultInsertion string        `json:"default_insertion,omitempty"`
	Tasks            []taskRequest `json:"tasks"`
}

type batchResponse struct {
	ID               string     `json:"id"`
	OwnerRef         string     `json:"owner_ref,omitempty"`
	Theme            string     `json:"theme"`
	DefaultInsertion string     `json:"default_insertion"`
	TaskIDs          []string   `json:"task_ids"`
	CreatedAt        time.Time  `json:"created_at"`
	CancelledAt      *time.Time `json:"cancelled_at,omitempty"`
}

func newBatchResponse(b model.Batch) batchResponse {
	return batchResponse{
		ID:               b.ID,
		OwnerRef:         b.OwnerRef,
		Theme:            string(b.Theme),
		DefaultInsertion: string(b.DefaultInsertion),
		TaskIDs:          b.TaskIDs,
		CreatedAt:        b.CreatedAt,
		CancelledAt:      b.CancelledAt,
	}
}

func (s *Server) handleSubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req submitBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	submitReq := submit.SubmitRequest{
		BatchID:          req.BatchID,
		OwnerRef:         req.OwnerRef,
		Theme:            req.Theme,
		DefaultInsertion: model.Insertion(req.DefaultInsertion),
	}
	for _, tr := range req.Tasks {
		submitReq.Tasks = append(submitReq.Tasks, submit.TaskRequest{
			ID:        tr.ID,
			Kind:      model.TaskKind(tr.Kind),
			Language:  tr.Language,
			Source:    tr.Source,
			Question:  tr.Question,
			Files:     tr.Files,
			Routes:    tr.Routes,
			Insertion: model.Insertion(tr.Insertion),
		})
	}

	batch, err := s.submit.Submit(r.Context(), submitReq)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, newBatchResponse(*batch))
}

type taskStatusResponse struct {
	ID            string            `json:"id"`
	Kind          string            `json:"kind"`
	Status        string            `json:"status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Result        *model.TaskResult `json:"result,omitempty"`
}

type batchStatusResponse struct {
	Batch     batchResponse        `json:"batch"`
	Status    string               `json:"status"`
	Pending   int                  `json:"pending"`
	Running   int                  `json:"running"`
	Completed int                  `json:"completed"`
	Failed    int                  `json:"failed"`
	Tasks     []taskStatusResponse `json:"tasks"`
}

func newBatchStatusResponse(st status.BatchStatus) batchStatusResponse {
	resp := batchStatusResponse{
		Batch:     newBatchResponse(st.Batch),
		Status:    string(st.Aggregate),
		Pending:   st.Pending,
		Running:   st.Running,
		Completed: st.Completed,
		Failed:    st.Failed,
	}
	for _, task := range st.Tasks {
		resp.Tasks = append(resp.Tasks, taskStatusResponse{
			ID:            task.ID,
			Kind:          string(task.Kind),
			Status:        string(task.Status),
			FailureReason: task.FailureReason,
			Result:        task.Result,
		})
	}
	return resp
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	st, err := s.status.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, newBatchStatusResponse(*st))
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.status.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]batchStatusResponse, 0, len(statuses))
	for _, st := range statuses {
		resp = append(resp, newBatchStatusResponse(st))
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.submit.Cancel(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

type composeRequest struct {
	Document string   `json:"document"`
	Ordering []string `json:"ordering,omitempty"`
}

type composeResponse struct {
	Ref      string `json:"ref"`
	Document string `json:"document"`
}

func (s *Server) handleComposeBatch(w http.ResponseWriter, r *http.Request) {
	var req composeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}

	report, err := s.compose.Compose(r.Context(), compose.ComposeRequest{
		BatchID:  chi.URLParam(r, "id"),
		Document: req.Document,
		Ordering: req.Ordering,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, composeResponse{Ref: report.Ref, Document: string(report.Content)})
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "*")

	data, err := s.store.Read(ref)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
