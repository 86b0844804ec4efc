package entities

import (
	"errors"
	"fmt"
	"time"
)

var ErrMissingPostField = errors.New("missing post field")

type Author struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

type Post struct {
	Id      string    `json:"id"`
	Author  Author    `json:"author"`
	Title   string    `json:"title"`
	Content string    `json:"content"`
	Created time.Time `json:"created"`
}

func NewPost(firstName, lastName, title, content string) *Post {
	return &Post{
		Author: Author{
			FirstName: firstName,
			LastName:  lastName,
		},
		Title:   title,
		Content: content,
	}
}

// Validate reports the first required field left empty. Content may be empty.
func (p *Post) Validate() error {
	switch {
	case p.Author.FirstName == "":
		return missingField("author.firstName")
	case p.Author.LastName == "":
		return missingField("author.lastName")
	case p.Title == "":
		return missingField("title")
	}
	return nil
}

// PostChanges is a partial update. Nil fields are left untouched.
type PostChanges struct {
	Title   *string
	Content *string
}

func (c PostChanges) Empty() bool {
	return c.Title == nil && c.Content == nil
}

func (c PostChanges) Validate() error {
	if c.Title != nil && *c.Title == "" {
		return missingField("title")
	}
	return nil
}

func (c PostChanges) Apply(p *Post) {
	if c.Title != nil {
		p.Title = *c.Title
	}
	if c.Content != nil {
		p.Content = *c.Content
	}
}

func missingField(name string) error {
	return fmt.Errorf("%w: %s", ErrMissingPostField, name)
}
