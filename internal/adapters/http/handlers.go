package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/raster"
	"github.com/aretw0/strata/pkg/stack"
)

func (s *Server) stack(r *http.Request) (*stack.Stack, error) {
	id := sessionID(r)
	if !domain.ValidSessionID(id) {
		return nil, fmt.Errorf("%w: %q", errInvalidSession, id)
	}
	return s.Sessions.Stack(r.Context(), id)
}

// renderCurrent encodes the active version of st, or reports ok=false when
// the stack is empty.
func (s *Server) renderCurrent(r *http.Request, st *stack.Stack) (data []byte, ok bool, err error) {
	id, ok := st.Current()
	if !ok {
		return nil, false, nil
	}
	data, err = s.Cache.GetOrRender(r.Context(), id, st.Versions().Load)
	if errors.Is(err, domain.ErrVersionNotFound) {
		// The active version must always be stored.
		return nil, true, fmt.Errorf("%w: active version %s is missing: %v", domain.ErrStorageCorruption, id, err)
	}
	return data, true, err
}

// PutImage handles PUT /image: it copies an upload into the session and makes
// it the new base image, then returns it rendered.
func (s *Server) PutImage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	upload := domain.VersionID(strings.TrimSpace(q.Get("versionId")))
	if upload == "" {
		upload = domain.VersionID(strings.TrimSpace(q.Get("_uuid")))
	}
	if !upload.Valid() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "upload not found"})
		return
	}

	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if _, err := st.Ingest(r.Context(), s.Uploads, upload); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.GetImage(w, r)
}

// GetImage handles GET /image.
func (s *Server) GetImage(w http.ResponseWriter, r *http.Request) {
	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, ok, err := s.renderCurrent(r, st)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, struct{}{})
		return
	}
	writeImage(w, "image/png", data)
}

// GetThumbnail handles GET /image/thumbnail?_uuid=<upload or version>.
func (s *Server) GetThumbnail(w http.ResponseWriter, r *http.Request) {
	id := domain.VersionID(strings.TrimSpace(r.URL.Query().Get("_uuid")))
	if !id.Valid() {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "image not found"})
		return
	}

	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	data, err := s.Cache.Thumbnail(r.Context(), id, func(ctx context.Context, id domain.VersionID) (*raster.Array, error) {
		a, err := s.Uploads.Load(ctx, id)
		if errors.Is(err, domain.ErrVersionNotFound) {
			return st.Versions().Load(ctx, id)
		}
		return a, err
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(data)
}

// ResetStack handles DELETE /stack.
func (s *Server) ResetStack(w http.ResponseWriter, r *http.Request) {
	st, err := s.stack(r)
	if err == nil {
		err = st.Reset(r.Context())
	}
	if err != nil {
		s.Logger.Error("reset failed", "session_id", sessionID(r), "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// GetStackState handles GET /stack/state.
func (s *Server) GetStackState(w http.ResponseWriter, r *http.Request) {
	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st.State())
}

// HistoryResponse is the body of GET /stack/history.
type HistoryResponse struct {
	SessionID string             `json:"session_id"`
	OriginID  domain.VersionID   `json:"origin_id"`
	Pointer   int                `json:"pointer"`
	History   []domain.VersionID `json:"history"`
}

// GetStackHistory handles GET /stack/history.
func (s *Server) GetStackHistory(w http.ResponseWriter, r *http.Request) {
	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sess := st.Session()
	writeJSON(w, http.StatusOK, HistoryResponse{
		SessionID: st.ID(),
		OriginID:  sess.OriginID,
		Pointer:   sess.Pointer,
		History:   sess.History,
	})
}

// MoveResponse is the body of the undo and redo endpoints.
type MoveResponse struct {
	Success      bool   `json:"success"`
	StackPointer int    `json:"stack_pointer"`
	UndoPossible bool   `json:"undo_possible"`
	RedoPossible bool   `json:"redo_possible"`
	Error        string `json:"error,omitempty"`
}

// Undo handles POST /stack/undo.
func (s *Server) Undo(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, (*stack.Stack).Undo)
}

// Redo handles POST /stack/redo.
func (s *Server) Redo(w http.ResponseWriter, r *http.Request) {
	s.move(w, r, (*stack.Stack).Redo)
}

func (s *Server) move(w http.ResponseWriter, r *http.Request, step func(*stack.Stack, context.Context) (bool, error)) {
	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ok, err := step(st, r.Context())
	state := st.State()
	resp := MoveResponse{
		Success:      ok,
		StackPointer: state.Pointer,
		UndoPossible: state.UndoPossible,
		RedoPossible: state.RedoPossible,
	}
	if err != nil {
		s.Logger.Error("stack move failed", "session_id", st.ID(), "path", r.URL.Path, "err", err)
		resp.Error = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// TransformRequest is the body of PUT /transform.
type TransformRequest struct {
	Op     string         `json:"op"`
	Params map[string]any `json:"params"`
}

// TransformResponse is the body of a successful PUT /transform.
type TransformResponse struct {
	Status       string           `json:"status"`
	Operation    string           `json:"operation"`
	InputUUID    domain.VersionID `json:"input_uuid"`
	OutputUUID   domain.VersionID `json:"output_uuid"`
	StackPointer int              `json:"stack_pointer"`
	UndoPossible bool             `json:"undo_possible"`
	RedoPossible bool             `json:"redo_possible"`
}

// ApplyTransform handles PUT /transform.
func (s *Server) ApplyTransform(w http.ResponseWriter, r *http.Request) {
	st, err := s.stack(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	// A missing or malformed body reads as an empty request, like the
	// no-active-image check that must come first.
	var body TransformRequest
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			body = TransformRequest{}
		}
	}

	res, err := s.Transform.Apply(r.Context(), st, body.Op, body.Params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, TransformResponse{
		Status:       "success",
		Operation:    res.Operation,
		InputUUID:    res.InputID,
		OutputUUID:   res.OutputID,
		StackPointer: res.State.Pointer,
		UndoPossible: res.State.UndoPossible,
		RedoPossible: res.State.RedoPossible,
	})
}
