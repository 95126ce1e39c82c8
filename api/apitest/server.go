// Package apitest provides an in-process fake of the source API: a form
// login endpoint plus cursor-paginated collections.
package apitest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/helix-tools/etl-go/types"
)

// Default paths, matching the layout of the real API.
const (
	LoginPath           = "/login"
	ApprenticeshipsPath = "/apprenticeships"
	ProgrammesPath      = "/programmes"
	ProjectsTemplate    = "/apprenticeships/{id}/projects"
)

// ProjectsPath returns the projects path of one apprenticeship.
func ProjectsPath(id string) string {
	return strings.ReplaceAll(ProjectsTemplate, "{id}", id)
}

// cursorPrefix marks cursors handed out by the fake.
const cursorPrefix = "page-"

// Fixture describes the data and behaviour of a fake API.
type Fixture struct {
	Username string
	Password string

	// Token is issued on a successful login and required on collection calls.
	Token string

	// OmitToken makes the login response leave out access_token.
	OmitToken bool

	// Collections maps a path to its pages, in order.
	Collections map[string][][]types.Record

	// Failures maps a path to a status code returned instead of data.
	Failures map[string]int

	// LoopCursor makes every page of a collection point back at the first
	// page, so the collection never ends.
	LoopCursor bool
}

// RecordedRequest is one request seen by the fake.
type RecordedRequest struct {
	Method        string
	Path          string
	Query         url.Values
	Form          url.Values
	Authorization string
}

// Server is a running fake API.
type Server struct {
	*httptest.Server

	fixture Fixture

	mu       sync.Mutex
	requests []RecordedRequest
}

// NewServer starts a fake API serving fixture. Callers must Close it.
func NewServer(fixture Fixture) *Server {
	s := &Server{fixture: fixture}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URLFor joins path onto the server's base URL.
func (s *Server) URLFor(path string) string {
	return s.Server.URL + path
}

// Requests returns a copy of the requests seen so far.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the requests seen for one path.
func (s *Server) RequestsTo(path string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Path == path {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) record(r *http.Request) {
	_ = r.ParseForm()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, RecordedRequest{
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Form:          r.PostForm,
		Authorization: r.Header.Get("Authorization"),
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.record(r)

	if status, ok := s.fixture.Failures[r.URL.Path]; ok {
		writeJSON(w, status, map[string]any{"detail": http.StatusText(status)})
		return
	}

	if r.URL.Path == LoginPath {
		s.handleLogin(w, r)
		return
	}

	pages, ok := s.fixture.Collections[r.URL.Path]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"detail": "Not Found"})
		return
	}
	s.handleCollection(w, r, pages)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"detail": "Method Not Allowed"})
		return
	}

	if r.PostForm.Get("username") != s.fixture.Username || r.PostForm.Get("password") != s.fixture.Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Incorrect username or password"})
		return
	}

	resp := map[string]any{"token_type": "bearer"}
	if !s.fixture.OmitToken {
		resp["access_token"] = s.fixture.Token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCollection(w http.ResponseWriter, r *http.Request, pages [][]types.Record) {
	if r.Header.Get("Authorization") != "Bearer "+s.fixture.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"detail": "Not authenticated"})
		return
	}

	idx := 0
	if cursor := r.URL.Query().Get("pagination_token"); cursor != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(cursor, cursorPrefix))
		if err != nil || n < 1 || n > len(pages) {
			writeJSON(w, http.StatusBadRequest, map[string]any{"detail": "invalid pagination_token"})
			return
		}
		idx = n - 1
	}

	data := []types.Record{}
	if idx < len(pages) {
		data = append(data, pages[idx]...)
	}

	var next *string
	switch {
	case s.fixture.LoopCursor:
		cursor := cursorPrefix + "1"
		next = &cursor
	case idx+1 < len(pages):
		cursor := fmt.Sprintf("%s%d", cursorPrefix, idx+2)
		next = &cursor
	}

	writeJSON(w, http.StatusOK, types.Page{
		Data:       data,
		Pagination: types.Pagination{NextToken: next},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
