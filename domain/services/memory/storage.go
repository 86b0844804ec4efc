package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blogapi/domain/entities"
	"blogapi/domain/services"

	"github.com/google/uuid"
)

var _ services.Storage = (*Storage)(nil)

// Storage keeps posts in a map. Listing follows insertion order.
type Storage struct {
	mu    sync.RWMutex
	ids   []string
	posts map[string]entities.Post
}

func NewStorage() *Storage {
	return &Storage{
		posts: map[string]entities.Post{},
	}
}

func (s *Storage) GetPosts(ctx context.Context) ([]entities.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := make([]entities.Post, 0, len(s.ids))
	for _, id := range s.ids {
		posts = append(posts, s.posts[id])
	}
	return posts, nil
}

func (s *Storage) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("getting post %q: %w", id, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.posts[id]
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	return &found, nil
}

func (s *Storage) StorePost(ctx context.Context, post *entities.Post) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storing post: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	post.Id = uuid.NewString()
	post.Created = time.Now().UTC()
	s.posts[post.Id] = *post
	s.ids = append(s.ids, post.Id)
	return nil
}

func (s *Storage) EditPost(ctx context.Context, id string, changes entities.PostChanges) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("editing post %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	found, ok := s.posts[id]
	if !ok {
		return fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	changes.Apply(&found)
	s.posts[id] = found
	return nil
}

func (s *Storage) DeletePost(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("deleting post %q: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		return fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	delete(s.posts, id)
	for i, v := range s.ids {
		if v == id {
			s.ids = append(s.ids[:i], s.ids[i+1:]...)
			break
		}
	}
	return nil
}
