package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"codecollab/internal/store"
)

// DocumentStore keeps room documents in a MongoDB collection, one
// full-snapshot record per room keyed by roomId.
type DocumentStore struct {
	col *mongo.Collection
}

// NewDocumentStore connects to Mongo and ensures a unique index on roomId.
func NewDocumentStore(ctx context.Context, uri, dbName string) (*DocumentStore, error) {
	if uri == "" {
		return nil, errors.New("MONGO_URI is empty")
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	col := client.Database(dbName).Collection("documents")
	_, _ = col.Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "roomId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})

	return &DocumentStore{col: col}, nil
}

func (s *DocumentStore) Load(ctx context.Context, roomID string) (*store.Document, error) {
	var doc store.Document
	err := s.col.FindOne(ctx, bson.M{"roomId": roomID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find document %s: %w", roomID, err)
	}
	return &doc, nil
}

func (s *DocumentStore) Save(ctx context.Context, doc *store.Document) error {
	opts := options.Replace().SetUpsert(true)
	if _, err := s.col.ReplaceOne(ctx, bson.M{"roomId": doc.RoomID}, doc, opts); err != nil {
		return fmt.Errorf("replace document %s: %w", doc.RoomID, err)
	}
	return nil
}
