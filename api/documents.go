package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/docsum/docstore"
	"github.com/hazyhaar/docsum/horosafe"
	"github.com/hazyhaar/docsum/kit"
	"github.com/hazyhaar/docsum/narrate"
	"github.com/hazyhaar/docsum/sessions"
	"github.com/hazyhaar/docsum/shield"
	"github.com/hazyhaar/docsum/summarize"
)

var errSessionNotFound = kit.NotFound("Session not found")

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.d.Documents.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []docstore.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	notFound := kit.NotFound("Document not found")
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, notFound)
		return
	}
	doc, err := s.d.Documents.Get(r.Context(), userID(r), id)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, r, notFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	rc, err := s.d.Documents.Open(r.Context(), doc)
	if errors.Is(err, docstore.ErrNotFound) {
		writeError(w, r, notFound)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": doc.Name}))
	w.Header().Set("Content-Length", strconv.FormatInt(doc.Size, 10))
	if _, err := io.Copy(w, rc); err != nil {
		shield.GetLogger(r.Context()).Warn("api: document download interrupted", "document_id", doc.ID, "error", err)
	}
}

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	// Room for the multipart envelope on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, s.d.MaxUpload+1<<20)
	f, hdr, err := r.FormFile("file")
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		writeError(w, r, kit.NewError(http.StatusRequestEntityTooLarge, "too_large", "File too large.", err))
		return
	}
	if err != nil {
		writeError(w, r, kit.BadRequest("No file was submitted."))
		return
	}
	defer f.Close()

	doc, err := s.d.Documents.Upload(r.Context(), userID(r), hdr.Filename, f)
	var unsupported *docstore.UnsupportedError
	switch {
	case errors.As(err, &unsupported):
		writeError(w, r, kit.BadRequest(unsupported.Error()))
		return
	case errors.Is(err, horosafe.ErrTooLarge):
		writeError(w, r, kit.NewError(http.StatusRequestEntityTooLarge, "too_large", "File too large.", err))
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	s.record(r, "upload", doc.UserID, nil, doc.Name)
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) summarizeDocs(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, r, kit.NewError(http.StatusRequestEntityTooLarge, "too_large", "Request body too large.", err))
		return
	}
	ids, err := parseFileIDs(s.summarize, body)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := s.d.Summarizer.Summarize(r.Context(), userID(r), ids)
	switch {
	case errors.Is(err, summarize.ErrNoDocuments):
		writeError(w, r, kit.BadRequest("No documents found"))
		return
	case errors.Is(err, summarize.ErrEmptySummary):
		writeError(w, r, kit.Internal("Gemini returned no summary text.", err))
		return
	case errors.Is(err, summarize.ErrGeneration):
		writeError(w, r, kit.Internal("Gemini summarization failed", err))
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	s.record(r, "summarize", userID(r), nil, fmt.Sprintf("session %d", res.SessionID))
	writeJSON(w, http.StatusOK, res)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Sessions.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []sessions.Session{}
	}
	writeJSON(w, http.StatusOK, list)
}

// loadSession answers 404 itself when the session is missing or not the
// caller's.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*sessions.Session, bool) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errSessionNotFound)
		return nil, false
	}
	sess, err := s.d.Sessions.Get(r.Context(), userID(r), id)
	if errors.Is(err, sessions.ErrNotFound) {
		writeError(w, r, errSessionNotFound)
		return nil, false
	}
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.loadSession(w, r); ok {
		writeJSON(w, http.StatusOK, sess)
	}
}

func (s *Server) exportSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := sessions.WriteXLSX(&buf, sess); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="summary_%d.xlsx"`, sess.ID))
	w.Write(buf.Bytes())
}

func (s *Server) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errSessionNotFound)
		return
	}
	reply, err := s.d.Summarizer.Chat(r.Context(), userID(r), id, req.Query)
	switch {
	case errors.Is(err, summarize.ErrEmptyQuery):
		writeError(w, r, kit.BadRequest("Query cannot be empty."))
		return
	case errors.Is(err, sessions.ErrNotFound):
		writeError(w, r, errSessionNotFound)
		return
	case errors.Is(err, summarize.ErrGeneration):
		writeError(w, r, kit.Internal("Gemini chat failed", err))
		return
	case err != nil:
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) audio(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Language string `json:"language"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, ok := pathID(r)
	if !ok {
		writeError(w, r, errSessionNotFound)
		return
	}
	n, err := s.d.Narrator.Narrate(r.Context(), userID(r), id, req.Language)
	switch {
	case errors.Is(err, narrate.ErrUnsupportedLanguage):
		writeError(w, r, kit.BadRequest("Unsupported language. Use 'en' or 'hi'."))
		return
	case errors.Is(err, sessions.ErrNotFound):
		writeError(w, r, errSessionNotFound)
		return
	case err != nil:
		writeError(w, r, kit.Internal("Audio generation failed", err))
		return
	}
	s.record(r, "narrate", userID(r), nil, fmt.Sprintf("session %d", id))
	writeJSON(w, http.StatusOK, n)
}
