// Package s3test provides an in-process, path-style S3 endpoint that keeps
// objects in memory. It understands PutObject and GetObject, enough for the
// SDK clients used by producer and consumer.
package s3test

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Object is one stored object.
type Object struct {
	Body        []byte
	ContentType string
	Header      http.Header
}

// Request is one request seen by the server.
type Request struct {
	Method string
	Bucket string
	Key    string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	objects  map[string]Object
	requests []Request
}

// NewServer starts an empty server. Callers must Close it.
func NewServer() *Server {
	s := &Server{objects: map[string]Object{}}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// Object returns a stored object.
func (s *Server) Object(bucket, key string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	obj, ok := s.objects[bucket+"/"+key]
	return obj, ok
}

// Keys returns the sorted keys stored in bucket.
func (s *Server) Keys(bucket string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []string
	for k := range s.objects {
		if b, key, _ := strings.Cut(k, "/"); b == bucket {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Requests returns a copy of the requests seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]Request(nil), s.requests...)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	bucket, key, _ := strings.Cut(strings.TrimPrefix(r.URL.Path, "/"), "/")

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: r.Method, Bucket: bucket, Key: key})
	s.mu.Unlock()

	switch r.Method {
	case http.MethodPut:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "IncompleteBody", err.Error())
			return
		}
		if strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
			body = decodeChunked(body)
		}

		s.mu.Lock()
		s.objects[bucket+"/"+key] = Object{
			Body:        body,
			ContentType: r.Header.Get("Content-Type"),
			Header:      r.Header.Clone(),
		}
		s.mu.Unlock()

		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)

	case http.MethodGet:
		obj, ok := s.Object(bucket, key)
		if !ok {
			writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.")
			return
		}

		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.Body)))
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(obj.Body)

	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "The specified method is not allowed.")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<Error><Code>`+code+`</Code><Message>`+message+`</Message></Error>`)
}

// decodeChunked strips aws-chunked framing: "<hex size>[;ext]\r\n<data>\r\n"
// repeated until a zero-size chunk, optionally followed by trailers.
func decodeChunked(b []byte) []byte {
	var out []byte
	for {
		i := bytes.Index(b, []byte("\r\n"))
		if i < 0 {
			return out
		}
		sizeHex, _, _ := strings.Cut(string(b[:i]), ";")
		n, err := strconv.ParseInt(strings.TrimSpace(sizeHex), 16, 64)
		if err != nil || n == 0 || int(n) > len(b[i+2:]) {
			return out
		}
		b = b[i+2:]
		out = append(out, b[:n]...)
		b = bytes.TrimPrefix(b[n:], []byte("\r\n"))
	}
}
