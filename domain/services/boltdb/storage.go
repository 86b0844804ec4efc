package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"blogapi/domain/entities"
	"blogapi/domain/services"

	"github.com/boltdb/bolt"
	"github.com/gouniverse/uid"
)

var _ services.Storage = (*Storage)(nil)

var (
	// Post documents keyed by id.
	postsBucket = []byte("posts")

	// Post ids keyed by big-endian insertion sequence, for listing.
	sequenceBucket = []byte("sequence")
)

// record is the document stored under a post id.
type record struct {
	Seq  uint64        `json:"seq"`
	Post entities.Post `json:"post"`
}

// Storage is a Storage implementation whose backend is a Bolt database. The
// database is owned by the caller.
type Storage bolt.DB

func NewStorage(db *bolt.DB) (*Storage, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{postsBucket, sequenceBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("could not ensure bucket %q exists: %w", name, err)
			}
		}
		return nil
	})
	return (*Storage)(db), err
}

func (s *Storage) db() *bolt.DB {
	return (*bolt.DB)(s)
}

func (s *Storage) GetPosts(ctx context.Context) ([]entities.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	posts := []entities.Post{}
	err := s.db().View(func(tx *bolt.Tx) error {
		docs := tx.Bucket(postsBucket)
		return tx.Bucket(sequenceBucket).ForEach(func(_, id []byte) error {
			r, err := decode(docs.Get(id))
			if err != nil {
				return fmt.Errorf("%.40q: %w", id, err)
			}
			posts = append(posts, r.Post)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	return posts, nil
}

func (s *Storage) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("getting post %q: %w", id, err)
	}

	var r *record
	err := s.db().View(func(tx *bolt.Tx) (err error) {
		r, err = get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &r.Post, nil
}

func (s *Storage) StorePost(ctx context.Context, post *entities.Post) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storing post: %w", err)
	}

	stored := *post
	stored.Created = time.Now().UTC()

	err := s.db().Update(func(tx *bolt.Tx) error {
		for stored.Id = uid.HumanUid(); tx.Bucket(postsBucket).Get([]byte(stored.Id)) != nil; {
			stored.Id = uid.HumanUid()
		}
		seq, err := tx.Bucket(sequenceBucket).NextSequence()
		if err != nil {
			return err
		}
		if err := put(tx, &record{Seq: seq, Post: stored}); err != nil {
			return err
		}
		return tx.Bucket(sequenceBucket).Put(seqKey(seq), []byte(stored.Id))
	})
	if err != nil {
		return fmt.Errorf("storing post: %w", err)
	}

	*post = stored
	return nil
}

func (s *Storage) EditPost(ctx context.Context, id string, changes entities.PostChanges) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("editing post %q: %w", id, err)
	}

	return s.db().Update(func(tx *bolt.Tx) error {
		r, err := get(tx, id)
		if err != nil {
			return err
		}
		changes.Apply(&r.Post)
		return put(tx, r)
	})
}

func (s *Storage) DeletePost(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("deleting post %q: %w", id, err)
	}

	return s.db().Update(func(tx *bolt.Tx) error {
		r, err := get(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(sequenceBucket).Delete(seqKey(r.Seq)); err != nil {
			return fmt.Errorf("could not delete sequence of %q: %w", id, err)
		}
		if err := tx.Bucket(postsBucket).Delete([]byte(id)); err != nil {
			return fmt.Errorf("could not delete %q: %w", id, err)
		}
		return nil
	})
}

func get(tx *bolt.Tx, id string) (*record, error) {
	value := tx.Bucket(postsBucket).Get([]byte(id))
	if value == nil {
		return nil, fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	r, err := decode(value)
	if err != nil {
		return nil, fmt.Errorf("%q: %w", id, err)
	}
	return r, nil
}

func put(tx *bolt.Tx, r *record) error {
	value, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("could not encode %q: %w", r.Post.Id, err)
	}
	if err := tx.Bucket(postsBucket).Put([]byte(r.Post.Id), value); err != nil {
		return fmt.Errorf("could not put %q: %w", r.Post.Id, err)
	}
	return nil
}

func decode(value []byte) (*record, error) {
	var r record
	if err := json.Unmarshal(value, &r); err != nil {
		return nil, fmt.Errorf("could not decode post: %w", err)
	}
	return &r, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
