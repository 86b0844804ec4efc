package specifications

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
	"testing"
	"time"
)

type CreatePostAction interface {
	CreateAPost(args ...string) (int, string, error)
}

type ListPostsAction interface {
	ListPosts() (int, string, error)
}

type GetPostAction interface {
	GetAPost(id string) (int, string, error)
}

type EditPostAction interface {
	EditAPost(id string, args ...string) (int, string, error)
}

type DeletePostAction interface {
	DeleteAPost(id string) (int, string, error)
}

type BlogDriver interface {
	CreatePostAction
	ListPostsAction
	GetPostAction
	EditPostAction
	DeletePostAction
}

// BlogSpecification runs every post specification against driver.
func BlogSpecification(t *testing.T, driver BlogDriver) {
	t.Run("creating a post", func(t *testing.T) {
		CreatingAPostSpecification(t, driver)
	})
	t.Run("creating a post with missing fields", func(t *testing.T) {
		MissingPostFieldsSpecification(t, driver)
	})
	t.Run("listing posts", func(t *testing.T) {
		ListingPostsSpecification(t, driver)
	})
	t.Run("editing a post", func(t *testing.T) {
		EditingAPostSpecification(t, driver)
	})
	t.Run("deleting a post", func(t *testing.T) {
		DeletingAPostSpecification(t, driver)
	})
}

func CreatingAPostSpecification(t testing.TB, driver CreatePostAction) {
	status, got, err := driver.CreateAPost("firstName: A", "lastName: B", "title: T", "content: C")
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusCreated)

	want := map[string]any{
		"title":   "T",
		"content": "C",
		"author": map[string]any{
			"firstName": "A",
			"lastName":  "B",
		},
	}
	post := decodePost(t, got)
	assertJSONHasNoError(t, post)
	assertHasIdAndCreated(t, post)
	assertPostsCanBeTheSame(t, post, want)
}

func MissingPostFieldsSpecification(t testing.TB, driver CreatePostAction) {
	cases := [][]string{
		{"lastName: B", "title: T", "content: C"},
		{"firstName: A", "title: T", "content: C"},
		{"firstName: A", "lastName: B", "content: C"},
		{"firstName: A", "lastName: B", "title: T"},
		{"firstName: A", "lastName: B", "title: ", "content: C"},
	}

	for _, args := range cases {
		status, got, err := driver.CreateAPost(args...)
		if err != nil {
			t.Fatalf("failed specification test, %v", err)
		}
		if status != http.StatusBadRequest {
			t.Errorf("creating with %v got status %d, but want %d", args, status, http.StatusBadRequest)
			continue
		}
		assertJSONHasError(t, decodePost(t, got))
	}
}

func ListingPostsSpecification(t testing.TB, driver interface {
	CreatePostAction
	ListPostsAction
}) {
	before := listPosts(t, driver)

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, createPost(t, driver, fmt.Sprintf("title: Post %d", i)))
	}

	after := listPosts(t, driver)
	if len(after) != len(before)+3 {
		t.Fatalf("got %d posts, but want %d", len(after), len(before)+3)
	}
	for _, id := range ids {
		if !containsPost(after, id) {
			t.Errorf("didn't list post %q", id)
		}
	}
}

func EditingAPostSpecification(t testing.TB, driver interface {
	CreatePostAction
	GetPostAction
	EditPostAction
}) {
	id := createPost(t, driver, "title: Old title")
	original := getPost(t, driver, id)

	status, body, err := driver.EditAPost(id, "id: "+id, "title: New title")
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusNoContent)
	if body != "" {
		t.Errorf("expected no body, but got %q", body)
	}

	edited := getPost(t, driver, id)
	assertPostsCanBeTheSame(t, edited, map[string]any{
		"title":   "New title",
		"content": original["content"],
		"author":  original["author"],
		"created": original["created"],
	})

	status, _, err = driver.EditAPost(id, "id: "+id, "content: New content")
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusNoContent)
	assertPostsCanBeTheSame(t, getPost(t, driver, id), map[string]any{
		"title":   "New title",
		"content": "New content",
	})

	status, _, err = driver.EditAPost(id, "id: someone-else", "title: Hijacked")
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusBadRequest)

	status, _, err = driver.EditAPost(id, "title: Hijacked")
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusBadRequest)

	status, _, err = driver.EditAPost("does-not-exist", "id: does-not-exist", "title: Nobody")
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusNotFound)
}

func DeletingAPostSpecification(t testing.TB, driver interface {
	CreatePostAction
	GetPostAction
	DeletePostAction
}) {
	id := createPost(t, driver, "title: Short lived")

	status, body, err := driver.DeleteAPost(id)
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusNoContent)
	if body != "" {
		t.Errorf("expected no body, but got %q", body)
	}

	status, _, err = driver.GetAPost(id)
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusNotFound)

	status, _, err = driver.DeleteAPost(id)
	if err != nil {
		t.Fatalf("failed specification test, %v", err)
	}
	assertStatus(t, status, http.StatusNotFound)
}

func createPost(t testing.TB, driver CreatePostAction, title string) string {
	t.Helper()

	status, got, err := driver.CreateAPost("firstName: Someone", "lastName: Else", title, "content: Some content")
	if err != nil {
		t.Fatalf("unable to create post, %v", err)
	}
	assertStatus(t, status, http.StatusCreated)
	id, _ := decodePost(t, got)["id"].(string)
	if id == "" {
		t.Fatalf("created post has no id")
	}
	return id
}

func getPost(t testing.TB, driver GetPostAction, id string) map[string]any {
	t.Helper()

	status, got, err := driver.GetAPost(id)
	if err != nil {
		t.Fatalf("unable to get post, %v", err)
	}
	assertStatus(t, status, http.StatusOK)
	return decodePost(t, got)
}

func listPosts(t testing.TB, driver ListPostsAction) []map[string]any {
	t.Helper()

	status, got, err := driver.ListPosts()
	if err != nil {
		t.Fatalf("unable to list posts, %v", err)
	}
	assertStatus(t, status, http.StatusOK)

	var posts []map[string]any
	if err := json.NewDecoder(strings.NewReader(got)).Decode(&posts); err != nil {
		t.Fatalf("unable to decode posts payload %q, %v", got, err)
	}
	return posts
}

func decodePost(t testing.TB, got string) map[string]any {
	t.Helper()

	var v map[string]any
	if err := json.NewDecoder(strings.NewReader(got)).Decode(&v); err != nil {
		t.Fatalf("unable to decode response payload %q, %v", got, err)
	}
	return v
}

func containsPost(posts []map[string]any, id string) bool {
	for _, p := range posts {
		if p["id"] == id {
			return true
		}
	}
	return false
}

func assertStatus(t testing.TB, got, want int) {
	t.Helper()

	if got != want {
		t.Fatalf("did not get correct status, got %d but want %d", got, want)
	}
}

func assertJSONHasNoError(t testing.TB, got map[string]any) {
	t.Helper()

	if err, ok := got["error"]; ok {
		t.Fatalf("expected no error, but got %v", err)
	}
}

func assertJSONHasError(t testing.TB, got map[string]any) {
	t.Helper()

	e, ok := got["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error, but got %v", got)
	}
	if msg, _ := e["message"].(string); msg == "" {
		t.Errorf("expected an error message, but got %v", e)
	}
}

func assertHasIdAndCreated(t testing.TB, got map[string]any) {
	t.Helper()

	if id, _ := got["id"].(string); id == "" {
		t.Errorf("expected an id, but got %v", got["id"])
	}
	created, _ := got["created"].(string)
	if _, err := time.Parse(time.RFC3339Nano, created); err != nil {
		t.Errorf("expected a created time, but got %q", created)
	}
}

// hasFields reports whether every field of want is in got with the same
// value. Nested objects are compared the same way.
func hasFields(got, want map[string]any) bool {
	for k, wv := range want {
		gv, ok := got[k]
		if !ok {
			return false
		}
		if wv, ok := wv.(map[string]any); ok {
			if gv, ok := gv.(map[string]any); ok && hasFields(gv, wv) {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(gv, wv) {
			return false
		}
	}
	return true
}

func assertPostsCanBeTheSame(t testing.TB, got, want map[string]any) {
	t.Helper()

	fn := func(p map[string]any) string {
		return fmt.Sprintf("{title=%v, content=%v, author=%v}", p["title"], p["content"], p["author"])
	}

	if !hasFields(got, want) {
		t.Fatalf("got post %s, but want %s", fn(got), fn(want))
	}
}
