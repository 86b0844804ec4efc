package services

import (
	"context"
	"errors"

	"blogapi/domain/entities"
)

// ErrPostNotFound is returned by every Storage operation addressing an id
// that is not stored.
var ErrPostNotFound = errors.New("storage: post not found")

// Storage persists posts. Implementations assign the id and created time on
// StorePost and are safe for concurrent use.
type Storage interface {
	GetPosts(ctx context.Context) ([]entities.Post, error)
	GetPost(ctx context.Context, id string) (*entities.Post, error)
	StorePost(ctx context.Context, post *entities.Post) error
	EditPost(ctx context.Context, id string, changes entities.PostChanges) error
	DeletePost(ctx context.Context, id string) error
}
