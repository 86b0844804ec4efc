package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"blogapi/adapters/httpserver"
	"blogapi/domain/entities"
	"blogapi/domain/services"
	"blogapi/domain/services/boltdb"
	"blogapi/domain/services/memory"
	"blogapi/domain/services/sqlite"
	"blogapi/specifications"

	"github.com/boltdb/bolt"
)

type StubStorage struct {
	posts    []entities.Post
	err      error
	lastCtx  context.Context
	edits    []entities.PostChanges
	deletion string
}

func (s *StubStorage) GetPosts(ctx context.Context) ([]entities.Post, error) {
	s.lastCtx = ctx
	return s.posts, s.err
}

func (s *StubStorage) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	s.lastCtx = ctx
	if s.err != nil {
		return nil, s.err
	}
	for _, p := range s.posts {
		if p.Id == id {
			return &p, nil
		}
	}
	return nil, services.ErrPostNotFound
}

func (s *StubStorage) StorePost(ctx context.Context, post *entities.Post) error {
	s.lastCtx = ctx
	if s.err != nil {
		return s.err
	}
	post.Id = "1"
	post.Created = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	s.posts = append(s.posts, *post)
	return nil
}

func (s *StubStorage) EditPost(ctx context.Context, id string, changes entities.PostChanges) error {
	s.lastCtx = ctx
	s.edits = append(s.edits, changes)
	return s.err
}

func (s *StubStorage) DeletePost(ctx context.Context, id string) error {
	s.lastCtx = ctx
	s.deletion = id
	return s.err
}

func TestServerSpecifications(t *testing.T) {
	testCases := []struct {
		name  string
		setup func(*testing.T) services.Storage
	}{
		{
			name: "in-memory storage",
			setup: func(*testing.T) services.Storage {
				return memory.NewStorage()
			},
		},
		{
			name: "boltdb storage",
			setup: func(t *testing.T) services.Storage {
				db, err := bolt.Open(filepath.Join(t.TempDir(), "posts.db"), 0600, nil)
				if err != nil {
					t.Fatalf("unable to open database, %v", err)
				}
				t.Cleanup(func() { db.Close() })
				store, err := boltdb.NewStorage(db)
				if err != nil {
					t.Fatalf("unable to create storage, %v", err)
				}
				return store
			},
		},
		{
			name: "sqlite storage",
			setup: func(t *testing.T) services.Storage {
				db, err := sqlite.Open(filepath.Join(t.TempDir(), "posts.sqlite"))
				if err != nil {
					t.Fatalf("unable to open database, %v", err)
				}
				t.Cleanup(func() { db.Close() })
				store, err := sqlite.NewStorage(sqlite.NewStorageOptions{
					DB:                 db,
					AutomigrateEnabled: true,
				})
				if err != nil {
					t.Fatalf("unable to create storage, %v", err)
				}
				return store
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(httpserver.NewServer(tc.setup(t)))
			defer server.Close()

			driver := &httpserver.Driver{
				BaseURL: server.URL,
				Client:  server.Client(),
			}
			specifications.BlogSpecification(t, driver)
		})
	}
}

func TestConcurrentRequests(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "posts.sqlite"))
	if err != nil {
		t.Fatalf("unable to open database, %v", err)
	}
	defer db.Close()
	store, err := sqlite.NewStorage(sqlite.NewStorageOptions{DB: db, AutomigrateEnabled: true})
	if err != nil {
		t.Fatalf("unable to create storage, %v", err)
	}
	server := httpserver.NewServer(store)

	const n = 100
	codes := make([]int, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body := `{"author": {"firstName": "A", "lastName": "B"}, "title": "T", "content": "C"}`
			response := httptest.NewRecorder()
			server.ServeHTTP(response, newRequest(http.MethodPost, "/posts", body))
			codes[i] = response.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusCreated {
			t.Fatalf("request %d got status %d, but want %d", i, code, http.StatusCreated)
		}
	}

	response := httptest.NewRecorder()
	server.ServeHTTP(response, newRequest(http.MethodGet, "/posts", ""))
	var got []entities.Post
	if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
		t.Fatalf("unable to decode posts, %v", err)
	}
	if len(got) != n {
		t.Errorf("got %d posts, but want %d", len(got), n)
	}
}

func TestGETPosts(t *testing.T) {
	t.Run("returns a bare list of posts", func(t *testing.T) {
		storage := &StubStorage{posts: []entities.Post{
			{Id: "1", Title: "Post 1", Content: "Post Content"},
			{Id: "2", Title: "Post 2", Content: "Post Content"},
		}}
		server := httpserver.NewServer(storage)

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodGet, "/posts", ""))

		assertStatus(t, response.Code, http.StatusOK)
		assertContentType(t, response, "application/json")

		var got []entities.Post
		if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
			t.Fatalf("unable to decode posts, %v", err)
		}
		if len(got) != 2 || got[0].Id != "1" || got[1].Id != "2" {
			t.Errorf("got posts %v, but want %v", got, storage.posts)
		}
	})

	t.Run("returns an empty list when there are no posts", func(t *testing.T) {
		server := httpserver.NewServer(memory.NewStorage())

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodGet, "/posts", ""))

		assertStatus(t, response.Code, http.StatusOK)
		if got := strings.TrimSpace(response.Body.String()); got != "[]" {
			t.Errorf("got body %q, but want %q", got, "[]")
		}
	})

	t.Run("returns 404 on missing posts", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{})

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodGet, "/posts/0", ""))

		assertStatus(t, response.Code, http.StatusNotFound)
		assertErrorMessage(t, response, httpserver.ErrPostNotFoundMessage)
	})
}

func TestPOSTPost(t *testing.T) {
	t.Run("stores the post and returns it", func(t *testing.T) {
		storage := &StubStorage{}
		server := httpserver.NewServer(storage)

		body := `{"author": {"firstName": "A", "lastName": "B"}, "title": "T", "content": "C", "id": "forged"}`
		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodPost, "/posts", body))

		assertStatus(t, response.Code, http.StatusCreated)

		var got entities.Post
		if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
			t.Fatalf("unable to decode post, %v", err)
		}
		want := entities.Post{
			Id:      "1",
			Author:  entities.Author{FirstName: "A", LastName: "B"},
			Title:   "T",
			Content: "C",
			Created: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		}
		if got.Id != want.Id || got.Author != want.Author || got.Title != want.Title ||
			got.Content != want.Content || !got.Created.Equal(want.Created) {
			t.Errorf("got post %+v, but want %+v", got, want)
		}
	})

	t.Run("accepts empty content", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{})

		body := `{"author": {"firstName": "A", "lastName": "B"}, "title": "T", "content": ""}`
		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodPost, "/posts", body))

		assertStatus(t, response.Code, http.StatusCreated)
	})

	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"unparseable body", `{"title": `, httpserver.ErrUnsupportedPostMessage},
		{"trailing data", `{"author": {"firstName": "A", "lastName": "B"}, "title": "T", "content": "C"} trailing`, httpserver.ErrUnsupportedPostMessage},
		{"two bodies", `{"author": {"firstName": "A", "lastName": "B"}, "title": "T", "content": "C"} {}`, httpserver.ErrUnsupportedPostMessage},
		{"missing author", `{"title": "T", "content": "C"}`, "missing post field: author.firstName"},
		{"missing last name", `{"author": {"firstName": "A"}, "title": "T", "content": "C"}`, "missing post field: author.lastName"},
		{"missing title", `{"author": {"firstName": "A", "lastName": "B"}, "content": "C"}`, "missing post field: title"},
		{"missing content", `{"author": {"firstName": "A", "lastName": "B"}, "title": "T"}`, "missing post field: content"},
	}
	for _, c := range cases {
		t.Run("returns 400 on "+c.name, func(t *testing.T) {
			storage := &StubStorage{}
			server := httpserver.NewServer(storage)

			response := httptest.NewRecorder()
			server.ServeHTTP(response, newRequest(http.MethodPost, "/posts", c.body))

			assertStatus(t, response.Code, http.StatusBadRequest)
			assertErrorMessage(t, response, c.message)
			if len(storage.posts) != 0 {
				t.Errorf("expected nothing stored, but got %v", storage.posts)
			}
		})
	}
}

func TestPUTPost(t *testing.T) {
	t.Run("passes only the given fields", func(t *testing.T) {
		storage := &StubStorage{}
		server := httpserver.NewServer(storage)

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodPut, "/posts/7", `{"id": "7", "content": "C"}`))

		assertStatus(t, response.Code, http.StatusNoContent)
		if len(storage.edits) != 1 {
			t.Fatalf("got %d edits, but want 1", len(storage.edits))
		}
		edit := storage.edits[0]
		if edit.Title != nil || edit.Content == nil || *edit.Content != "C" {
			t.Errorf("got changes %+v, but want only content", edit)
		}
	})

	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"unparseable body", `{"id": `, httpserver.ErrUnsupportedPostMessage},
		{"trailing data", `{"id": "7", "title": "T"} trailing`, httpserver.ErrUnsupportedPostMessage},
		{"missing body id", `{"title": "T"}`, httpserver.ErrPostIdMismatchMessage},
		{"mismatched body id", `{"id": "8", "title": "T"}`, httpserver.ErrPostIdMismatchMessage},
		{"nothing to change", `{"id": "7"}`, httpserver.ErrNoPostChangesMessage},
		{"empty title", `{"id": "7", "title": ""}`, "missing post field: title"},
	}
	for _, c := range cases {
		t.Run("returns 400 on "+c.name, func(t *testing.T) {
			storage := &StubStorage{}
			server := httpserver.NewServer(storage)

			response := httptest.NewRecorder()
			server.ServeHTTP(response, newRequest(http.MethodPut, "/posts/7", c.body))

			assertStatus(t, response.Code, http.StatusBadRequest)
			assertErrorMessage(t, response, c.message)
			if len(storage.edits) != 0 {
				t.Errorf("expected no edits, but got %v", storage.edits)
			}
		})
	}

	t.Run("returns 404 on missing posts", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{err: services.ErrPostNotFound})

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodPut, "/posts/7", `{"id": "7", "title": "T"}`))

		assertStatus(t, response.Code, http.StatusNotFound)
	})
}

func TestDELETEPost(t *testing.T) {
	t.Run("deletes the post in path", func(t *testing.T) {
		storage := &StubStorage{}
		server := httpserver.NewServer(storage)

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodDelete, "/posts/7", ""))

		assertStatus(t, response.Code, http.StatusNoContent)
		if storage.deletion != "7" {
			t.Errorf("got deletion of %q, but want %q", storage.deletion, "7")
		}
	})

	t.Run("returns 404 on missing posts", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{err: services.ErrPostNotFound})

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodDelete, "/posts/7", ""))

		assertStatus(t, response.Code, http.StatusNotFound)
	})
}

func TestContentType(t *testing.T) {
	t.Run("labels error bodies as JSON", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{})

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodGet, "/posts/0", ""))

		assertStatus(t, response.Code, http.StatusNotFound)
		assertContentType(t, response, "application/json")
	})

	t.Run("does not label bodiless responses", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{})

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodDelete, "/posts/7", ""))

		assertStatus(t, response.Code, http.StatusNoContent)
		assertContentType(t, response, "")
	})

	t.Run("does not label unknown routes as JSON", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{})

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodGet, "/nothing/here", ""))

		assertStatus(t, response.Code, http.StatusNotFound)
		if got := response.Result().Header.Get("Content-Type"); got == "application/json" {
			t.Errorf("got content type %q on a router miss", got)
		}
	})
}

func TestStorageFailures(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"unavailable storage", errors.New("connection refused"), http.StatusInternalServerError, httpserver.ErrInternalMessage},
		{"expired deadline", context.DeadlineExceeded, http.StatusRequestTimeout, httpserver.ErrRequestTimeoutMessage},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			server := httpserver.NewServer(&StubStorage{err: c.err})

			response := httptest.NewRecorder()
			server.ServeHTTP(response, newRequest(http.MethodGet, "/posts", ""))

			assertStatus(t, response.Code, c.status)
			assertErrorMessage(t, response, c.message)
		})
	}
}

func TestSetTimeout(t *testing.T) {
	t.Run("rejects durations under a second", func(t *testing.T) {
		server := httpserver.NewServer(&StubStorage{})
		if err := server.SetTimeout(500 * time.Millisecond); err == nil {
			t.Error("expected an error, but got none")
		}
	})

	t.Run("bounds the storage context", func(t *testing.T) {
		storage := &StubStorage{}
		server := httpserver.NewServer(storage)
		if err := server.SetTimeout(2 * time.Second); err != nil {
			t.Fatalf("unable to set timeout, %v", err)
		}

		response := httptest.NewRecorder()
		server.ServeHTTP(response, newRequest(http.MethodGet, "/posts", ""))

		deadline, ok := storage.lastCtx.Deadline()
		if !ok {
			t.Fatal("storage context has no deadline")
		}
		if time.Until(deadline) > 2*time.Second {
			t.Errorf("got deadline %v, but want at most 2s from now", deadline)
		}
	})
}

func newRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func assertStatus(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Errorf("did not get correct status, got %d but want %d", got, want)
	}
}

func assertContentType(t testing.TB, response *httptest.ResponseRecorder, want string) {
	t.Helper()

	if got := response.Result().Header.Get("Content-Type"); got != want {
		t.Errorf("got content type %q, but want %q", got, want)
	}
}

func assertErrorMessage(t testing.TB, response *httptest.ResponseRecorder, want string) {
	t.Helper()

	var got struct {
		Error httpserver.Error `json:"error"`
	}
	if err := json.NewDecoder(response.Body).Decode(&got); err != nil {
		t.Fatalf("unable to decode error, %v", err)
	}
	if got.Error.Message != want {
		t.Errorf("got error message %q, but want %q", got.Error.Message, want)
	}
}
