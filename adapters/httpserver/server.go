package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"blogapi/domain/entities"
	"blogapi/domain/services"

	log "github.com/sirupsen/logrus"
	router "github.com/xandalm/go-router"
)

type Error struct {
	Message string `json:"message,omitempty"`
}

func NewError(message string) *Error {
	return &Error{
		Message: message,
	}
}

// ResponseModel wraps error responses. Successful responses carry the bare
// post or list of posts.
type ResponseModel struct {
	Error any `json:"error,omitempty"`
}

const (
	ErrPostNotFoundMessage    = "there is no such post here"
	ErrUnsupportedPostMessage = "unsupported data to parse into post"
	ErrPostIdMismatchMessage  = "post id in body must match the one in path"
	ErrNoPostChangesMessage   = "nothing to change (title or content is required)"
	ErrRequestTimeoutMessage  = "request took too long to complete"
	ErrInternalMessage        = "something went wrong on our side"
)

// postPayload is the body of a post creation. Content may be empty but must
// be present.
type postPayload struct {
	Author  entities.Author `json:"author"`
	Title   string          `json:"title"`
	Content *string         `json:"content"`
}

// editPayload is the body of a post edition. Id must match the path.
type editPayload struct {
	Id      *string `json:"id"`
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type Server struct {
	storage services.Storage
	router  *router.Router
	to      time.Duration
}

func NewServer(storage services.Storage) *Server {
	s := &Server{
		storage: storage,
		router:  &router.Router{},
		to:      time.Minute,
	}

	s.router.GetFunc("/posts/{id}", s.getPostHandler)
	s.router.PutFunc("/posts/{id}", s.editPostHandler)
	s.router.DeleteFunc("/posts/{id}", s.deletePostHandler)
	s.router.GetFunc("/posts", s.getPostsHandler)
	s.router.PostFunc("/posts", s.storePostHandler)

	return s
}

// SetTimeout bounds the time each request may spend, storage included.
func (s *Server) SetTimeout(duration time.Duration) error {
	if duration < time.Second {
		return errors.New("timeout duration must be greater than 1s")
	}
	s.to = duration
	return nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(r.Context(), s.to)
	defer cancel()

	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	ctx = context.WithValue(ctx, statusWriterKey{}, sw)
	s.router.ServeHTTP(sw, r.WithContext(ctx))
	sw.flush()

	log.WithFields(log.Fields{
		"method":   r.Method,
		"path":     r.URL.Path,
		"status":   sw.status,
		"duration": time.Since(start),
	}).Debug("Served request")
}

// writeJSON writes v as the body of a code response.
func (s *Server) writeJSON(w router.ResponseWriter, r *router.Request, code int, v any) {
	if sw, ok := r.Context().Value(statusWriterKey{}).(*statusWriter); ok {
		sw.json = true
	}
	w.WriteHeader(code)
	toJSON(w, v)
}

func (s *Server) writeError(w router.ResponseWriter, r *router.Request, code int, message string) {
	s.writeJSON(w, r, code, ResponseModel{Error: NewError(message)})
}

// writeStorageError maps a storage failure onto a response.
func (s *Server) writeStorageError(w router.ResponseWriter, r *router.Request, err error) {
	switch {
	case errors.Is(err, services.ErrPostNotFound):
		s.writeError(w, r, http.StatusNotFound, ErrPostNotFoundMessage)
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, r, http.StatusRequestTimeout, ErrRequestTimeoutMessage)
	default:
		log.WithFields(log.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"err":    err,
		}).Error("Storage failure")
		s.writeError(w, r, http.StatusInternalServerError, ErrInternalMessage)
	}
}

func (s *Server) storePostHandler(w router.ResponseWriter, r *router.Request) {
	var payload postPayload
	if err := parseBody(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrUnsupportedPostMessage)
		return
	}

	post := entities.NewPost(payload.Author.FirstName, payload.Author.LastName, payload.Title, "")
	if err := post.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if payload.Content == nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("%w: content", entities.ErrMissingPostField).Error())
		return
	}
	post.Content = *payload.Content

	if err := s.storage.StorePost(r.Context(), post); err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusCreated, post)
}

func (s *Server) getPostsHandler(w router.ResponseWriter, r *router.Request) {
	posts, err := s.storage.GetPosts(r.Context())
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, posts)
}

func (s *Server) getPostHandler(w router.ResponseWriter, r *router.Request) {
	postId := r.Params()["id"]

	foundPost, err := s.storage.GetPost(r.Context(), postId)
	if err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	s.writeJSON(w, r, http.StatusOK, foundPost)
}

func (s *Server) editPostHandler(w router.ResponseWriter, r *router.Request) {
	postId := r.Params()["id"]

	var payload editPayload
	if err := parseBody(r, &payload); err != nil {
		s.writeError(w, r, http.StatusBadRequest, ErrUnsupportedPostMessage)
		return
	}
	if payload.Id == nil || *payload.Id != postId {
		s.writeError(w, r, http.StatusBadRequest, ErrPostIdMismatchMessage)
		return
	}

	changes := entities.PostChanges{
		Title:   payload.Title,
		Content: payload.Content,
	}
	if changes.Empty() {
		s.writeError(w, r, http.StatusBadRequest, ErrNoPostChangesMessage)
		return
	}
	if err := changes.Validate(); err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.storage.EditPost(r.Context(), postId, changes); err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deletePostHandler(w router.ResponseWriter, r *router.Request) {
	postId := r.Params()["id"]

	if err := s.storage.DeletePost(r.Context(), postId); err != nil {
		s.writeStorageError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

var errTrailingData = errors.New("unexpected data after body")

// parseBody decodes a body holding exactly one JSON value into v.
func parseBody(r *router.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&json.RawMessage{}); err != io.EOF {
		return errTrailingData
	}
	return nil
}

func toJSON(w io.Writer, s any) error {
	return json.NewEncoder(w).Encode(s)
}

type statusWriterKey struct{}

// statusWriter records the status code for the access log. The header is
// held back until the body starts, so that only bodies written by writeJSON
// are labelled as JSON.
type statusWriter struct {
	http.ResponseWriter
	status      int
	json        bool
	wroteHeader bool
	flushed     bool
}

func (w *statusWriter) WriteHeader(code int) {
	if w.wroteHeader || w.flushed {
		return
	}
	w.status = code
	w.wroteHeader = true
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.flush()
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) flush() {
	if w.flushed {
		return
	}
	w.flushed = true
	if w.json {
		w.ResponseWriter.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(w.status)
}
