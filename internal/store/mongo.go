package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoNoteStore backs NoteStore with a MongoDB collection.
type MongoNoteStore struct {
	notes *mongo.Collection
}

func NewMongoNoteStore(db *mongo.Database) *MongoNoteStore {
	return &MongoNoteStore{notes: db.Collection("notes")}
}

func (s *MongoNoteStore) GetByID(ctx context.Context, id string) (*Note, error) {
	var note Note
	err := s.notes.FindOne(ctx, bson.M{"_id": id}).Decode(&note)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

func (s *MongoNoteStore) HasPermission(ctx context.Context, noteID, userID string, level PermissionLevel) (bool, error) {
	note, err := s.GetByID(ctx, noteID)
	if err != nil {
		return false, err
	}
	return note.HasPermission(userID, level), nil
}

// Persist applies an explicit save. The version increments only when content
// or title actually change.
func (s *MongoNoteStore) Persist(ctx context.Context, id string, upd Update) (int64, error) {
	note, err := s.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}

	set := bson.M{}
	if upd.Content != nil && *upd.Content != note.Content {
		set["content"] = *upd.Content
	}
	if upd.Title != nil && *upd.Title != note.Title {
		set["title"] = *upd.Title
	}
	if len(set) == 0 {
		return note.Version, nil
	}
	set["lastActivity"] = time.Now().UTC()

	res := s.notes.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": set, "$inc": bson.M{"version": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)

	var updated Note
	if err := res.Decode(&updated); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return updated.Version, nil
}

func (s *MongoNoteStore) TouchActivity(ctx context.Context, id string) error {
	_, err := s.notes.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"lastActivity": time.Now().UTC()}},
	)
	return err
}
