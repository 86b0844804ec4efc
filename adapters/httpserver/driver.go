package httpserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type Args map[string]any

func (a Args) Get(names ...string) map[string]any {
	res := make(map[string]any)
	for _, name := range names {
		if v, ok := a[name]; ok {
			res[name] = v
		}
	}
	return res
}

func ParseArgs(args ...string) Args {
	res := make(Args)
	for _, arg := range args {
		splited := strings.SplitN(arg, ":", 2)
		if len(splited) != 2 {
			panic("argument must be `name: value` pattern")
		}
		name := strings.Trim(splited[0], " ")
		value := strings.Trim(splited[1], " ")
		res[name] = value
	}
	return res
}

// Driver talks to a running server over HTTP. Every call reports the status
// code and the raw response body.
type Driver struct {
	BaseURL string
	Client  *http.Client
}

// CreateAPost posts the given `name: value` args. Only the args present are
// sent, so a missing arg is a missing field.
func (d *Driver) CreateAPost(args ...string) (int, string, error) {
	parsed := ParseArgs(args...)

	payload := parsed.Get("title", "content")
	if author := parsed.Get("firstName", "lastName"); len(author) > 0 {
		payload["author"] = author
	}
	return d.send(http.MethodPost, "/posts", payload)
}

func (d *Driver) ListPosts() (int, string, error) {
	return d.send(http.MethodGet, "/posts", nil)
}

func (d *Driver) GetAPost(id string) (int, string, error) {
	return d.send(http.MethodGet, "/posts/"+url.PathEscape(id), nil)
}

// EditAPost puts the given `name: value` args (id, title, content) to the
// post with the given id.
func (d *Driver) EditAPost(id string, args ...string) (int, string, error) {
	payload := ParseArgs(args...).Get("id", "title", "content")
	return d.send(http.MethodPut, "/posts/"+url.PathEscape(id), payload)
}

func (d *Driver) DeleteAPost(id string) (int, string, error) {
	return d.send(http.MethodDelete, "/posts/"+url.PathEscape(id), nil)
}

func (d *Driver) send(method, path string, payload map[string]any) (int, string, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return 0, "", err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, d.BaseURL+path, body)
	if err != nil {
		return 0, "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := d.Client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, "", err
	}
	return res.StatusCode, string(data), nil
}
