package store

import (
	"context"
	"errors"
	"time"
)

// PermissionLevel orders note capabilities: read < write < admin.
type PermissionLevel string

const (
	LevelRead  PermissionLevel = "read"
	LevelWrite PermissionLevel = "write"
	LevelAdmin PermissionLevel = "admin"
)

var ErrNotFound = errors.New("note not found")

type Collaborator struct {
	UserID string          `bson:"userId" json:"userId"`
	Level  PermissionLevel `bson:"level" json:"level"`
}

// Note is a snapshot of the stored document. The store owns content and
// version; the session layer only reads snapshots and asks for persistence.
type Note struct {
	ID            string         `bson:"_id" json:"id"`
	Title         string         `bson:"title" json:"title"`
	Content       string         `bson:"content" json:"content"`
	OwnerID       string         `bson:"ownerId" json:"ownerId"`
	Collaborators []Collaborator `bson:"collaborators" json:"collaborators"`
	IsPublic      bool           `bson:"isPublic" json:"isPublic"`
	Version       int64          `bson:"version" json:"version"`
	LastActivity  time.Time      `bson:"lastActivity" json:"lastActivity"`
}

// HasPermission reports whether the user holds at least the required level.
// The owner holds every level; collaborator levels include the levels below
// them; public notes are readable by anyone.
func (n *Note) HasPermission(userID string, level PermissionLevel) bool {
	if n.OwnerID == userID {
		return true
	}

	var granted PermissionLevel
	for _, collab := range n.Collaborators {
		if collab.UserID == userID {
			granted = collab.Level
			break
		}
	}

	if granted == "" {
		return n.IsPublic && level == LevelRead
	}

	switch level {
	case LevelRead:
		return granted == LevelRead || granted == LevelWrite || granted == LevelAdmin
	case LevelWrite:
		return granted == LevelWrite || granted == LevelAdmin
	case LevelAdmin:
		return granted == LevelAdmin
	default:
		return false
	}
}

// Update carries the fields of an explicit save. Nil fields are left as-is.
type Update struct {
	Content *string
	Title   *string
}

// NoteStore is the persistence collaborator for the session layer.
type NoteStore interface {
	GetByID(ctx context.Context, id string) (*Note, error)
	HasPermission(ctx context.Context, noteID, userID string, level PermissionLevel) (bool, error)
	// Persist applies an update and returns the new authoritative version.
	Persist(ctx context.Context, id string, upd Update) (int64, error)
	TouchActivity(ctx context.Context, id string) error
}
