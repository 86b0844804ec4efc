package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"blogapi/domain/entities"
	"blogapi/domain/services"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var _ services.Storage = (*Storage)(nil)

const collectionName = "posts"

type authorDocument struct {
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
}

type postDocument struct {
	ID      primitive.ObjectID `bson:"_id,omitempty"`
	Author  authorDocument     `bson:"author"`
	Title   string             `bson:"title"`
	Content string             `bson:"content"`
	Created time.Time          `bson:"created"`
}

func (d *postDocument) post() entities.Post {
	return entities.Post{
		Id: d.ID.Hex(),
		Author: entities.Author{
			FirstName: d.Author.FirstName,
			LastName:  d.Author.LastName,
		},
		Title:   d.Title,
		Content: d.Content,
		Created: d.Created.UTC(),
	}
}

// Storage keeps posts in the "posts" collection of a MongoDB database.
type Storage struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// Connect dials uri and returns a Storage on the named database. The returned
// Storage owns the client; release it with Close.
func Connect(ctx context.Context, uri, database string) (*Storage, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to %q: %w", uri, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging %q: %w", uri, err)
	}
	s := NewStorage(client.Database(database))
	s.client = client
	return s, nil
}

// NewStorage uses db without taking ownership of its client.
func NewStorage(db *mongo.Database) *Storage {
	return &Storage{collection: db.Collection(collectionName)}
}

func (s *Storage) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Drop removes the collection with every post in it.
func (s *Storage) Drop(ctx context.Context) error {
	if err := s.collection.Drop(ctx); err != nil {
		return fmt.Errorf("dropping %s: %w", collectionName, err)
	}
	return nil
}

func (s *Storage) GetPosts(ctx context.Context) ([]entities.Post, error) {
	cursor, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}
	var docs []postDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("listing posts: %w", err)
	}

	posts := make([]entities.Post, 0, len(docs))
	for i := range docs {
		posts = append(posts, docs[i].post())
	}
	return posts, nil
}

func (s *Storage) GetPost(ctx context.Context, id string) (*entities.Post, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}

	var doc postDocument
	err = s.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting post %q: %w", id, err)
	}

	post := doc.post()
	return &post, nil
}

func (s *Storage) StorePost(ctx context.Context, post *entities.Post) error {
	doc := postDocument{
		ID: primitive.NewObjectID(),
		Author: authorDocument{
			FirstName: post.Author.FirstName,
			LastName:  post.Author.LastName,
		},
		Title:   post.Title,
		Content: post.Content,
		// BSON dates carry milliseconds.
		Created: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("storing post: %w", err)
	}

	*post = doc.post()
	return nil
}

func (s *Storage) EditPost(ctx context.Context, id string, changes entities.PostChanges) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	set := bson.M{}
	if changes.Title != nil {
		set["title"] = *changes.Title
	}
	if changes.Content != nil {
		set["content"] = *changes.Content
	}
	if len(set) == 0 {
		_, err := s.GetPost(ctx, id)
		return err
	}

	res, err := s.collection.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("editing post %q: %w", id, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	return nil
}

func (s *Storage) DeletePost(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}

	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return fmt.Errorf("deleting post %q: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	return nil
}

// objectID parses id. Malformed ids can't name a stored post.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return oid, fmt.Errorf("%q: %w", id, services.ErrPostNotFound)
	}
	return oid, nil
}
