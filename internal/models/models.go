package models

import (
	"encoding/json"
	"errors"
	"time"
)

// Frame types exchanged over a note websocket. One constant per message in
// the collaboration vocabulary; anything else is rejected at the boundary.
const (
	// client -> server
	TypeJoinNote       = "join-note"
	TypeContentChange  = "content-change"
	TypeCursorPosition = "cursor-position"
	TypeSaveNote       = "save-note"
	TypeLeaveNote      = "leave-note"

	// server -> client
	TypeNoteJoined      = "note-joined"
	TypeUserJoined      = "user-joined"
	TypeContentChanged  = "content-changed"
	TypeVersionConflict = "version-conflict"
	TypeCursorMoved     = "cursor-moved"
	TypeNoteSaved       = "note-saved"
	TypeUserLeft        = "user-left"
	TypeNotification    = "notification"
	TypeError           = "error"
)

type WSFrame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// DecodeData re-decodes a frame's loosely typed payload into a concrete
// variant struct.
func DecodeData(frame WSFrame, out any) error {
	b, err := json.Marshal(frame.Data)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}

// User is the identity resolved at connection time and attached to a client.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"nom"`
	Avatar string `json:"avatar"`
}

// UserRef is the short identity carried on change/save broadcasts.
type UserRef struct {
	ID   string `json:"id"`
	Name string `json:"nom"`
}

func (u User) Ref() UserRef { return UserRef{ID: u.ID, Name: u.Name} }

// PresenceEntry records one connection's membership in a note room.
type PresenceEntry struct {
	User     User      `json:"user"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Selection is an optional cursor/selection range forwarded opaquely between
// editors.
type Selection struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

/*** client -> server payloads ***/

type JoinNote struct {
	NoteID string `json:"noteId"`
}

func (p JoinNote) Validate() error {
	if p.NoteID == "" {
		return errors.New("note id is required")
	}
	return nil
}

type ContentChange struct {
	NoteID    string     `json:"noteId"`
	Content   *string    `json:"content"`
	Selection *Selection `json:"selection,omitempty"`
	Version   int64      `json:"version"`
}

func (p ContentChange) Validate() error {
	if p.NoteID == "" || p.Content == nil {
		return errors.New("incomplete content change")
	}
	return nil
}

type CursorPosition struct {
	NoteID    string     `json:"noteId"`
	Position  int        `json:"position"`
	Selection *Selection `json:"selection,omitempty"`
}

type SaveNote struct {
	NoteID  string  `json:"noteId"`
	Content *string `json:"content,omitempty"`
	Title   *string `json:"title,omitempty"`
}

func (p SaveNote) Validate() error {
	if p.NoteID == "" {
		return errors.New("note id is required")
	}
	return nil
}

/*** server -> client payloads ***/

type NoteJoined struct {
	NoteID         string `json:"noteId"`
	ConnectedUsers []User `json:"connectedUsers"`
}

type UserJoined struct {
	User User `json:"user"`
}

type ContentChanged struct {
	Content   string     `json:"content"`
	Selection *Selection `json:"selection,omitempty"`
	Version   int64      `json:"version"`
	ChangedBy UserRef    `json:"changedBy"`
	Timestamp time.Time  `json:"timestamp"`
}

type VersionConflict struct {
	ServerVersion int64  `json:"serverVersion"`
	ServerContent string `json:"serverContent"`
}

type CursorMoved struct {
	Position  int        `json:"position"`
	Selection *Selection `json:"selection,omitempty"`
	User      User       `json:"user"`
}

type NoteSaved struct {
	NoteID    string    `json:"noteId"`
	Version   int64     `json:"version"`
	SavedBy   UserRef   `json:"savedBy"`
	Timestamp time.Time `json:"timestamp"`
}

type UserLeft struct {
	User User `json:"user"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
