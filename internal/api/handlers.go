package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"notecollab/internal/metrics"
	"notecollab/internal/models"
	"notecollab/internal/session"
	"notecollab/internal/store"
	"notecollab/internal/utils"
)

// TokenVerifier resolves a bearer credential into a user identity.
type TokenVerifier interface {
	Verify(token string) (models.User, error)
}

// JWTVerifier validates HS256 user tokens.
type JWTVerifier struct{}

func (JWTVerifier) Verify(token string) (models.User, error) {
	claims, err := utils.ValidateUserToken(token)
	if err != nil {
		return models.User{}, err
	}
	return models.User{ID: claims.Subject, Name: claims.Name, Avatar: claims.Avatar}, nil
}

// Notifier delivers out-of-band personal notifications for a user.
type Notifier interface {
	Relay(ctx context.Context, userID string, deliver func(payload string))
}

// activityThrottle caps activity-timestamp writes to one per interval per
// note; content-change would otherwise touch the store on every keystroke.
type activityThrottle struct {
	mu       sync.Mutex
	last     map[string]time.Time
	interval time.Duration
}

func newActivityThrottle(interval time.Duration) *activityThrottle {
	return &activityThrottle{last: make(map[string]time.Time), interval: interval}
}

func (t *activityThrottle) Allow(noteID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	if last, ok := t.last[noteID]; ok && now.Sub(last) < t.interval {
		return false
	}
	t.last[noteID] = now
	return true
}

type Handlers struct {
	log      *utils.Logger
	store    store.NoteStore
	registry *session.Registry
	notifier Notifier
	verify   TokenVerifier
	touch    *activityThrottle
}

func NewHandlers(log *utils.Logger, st store.NoteStore, reg *session.Registry, n Notifier) *Handlers {
	return NewHandlersWithVerifier(log, st, reg, n, JWTVerifier{})
}

func NewHandlersWithVerifier(log *utils.Logger, st store.NoteStore, reg *session.Registry, n Notifier, v TokenVerifier) *Handlers {
	return &Handlers{
		log:      log,
		store:    st,
		registry: reg,
		notifier: n,
		verify:   v,
		touch:    newActivityThrottle(time.Second),
	}
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	_, _ = w.Write([]byte("ok"))
}

// NotePresence returns the presence summaries for a note's room.
func (h *Handlers) NotePresence(w http.ResponseWriter, r *http.Request) {
	noteID := chi.URLParam(r, "id")
	if noteID == "" {
		http.Error(w, "note id is required", http.StatusBadRequest)
		return
	}
	utils.WriteJSON(w, http.StatusOK, h.registry.Presence(noteID))
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// NotesWS is the collaboration endpoint. The bearer credential is verified
// before the upgrade; an unauthenticated connection never reaches the room
// layer.
func (h *Handlers) NotesWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		header, err := utils.ExtractTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		token = header
	}

	user, err := h.verify.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := session.NewClient(conn, user)
	go client.WritePump()

	metrics.ConnectionOpened()
	defer metrics.ConnectionClosed()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if h.notifier != nil {
		// Personal channel for out-of-band notifications to this user.
		go h.notifier.Relay(ctx, user.ID, func(payload string) {
			client.Send(models.WSFrame{Type: models.TypeNotification, Data: json.RawMessage(payload)})
		})
	}

	defer func() {
		client.Close()
		h.handleLeave(client)
	}()

	for {
		var frame models.WSFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		h.dispatch(ctx, client, frame)
	}
}

func (h *Handlers) dispatch(ctx context.Context, c *session.Client, frame models.WSFrame) {
	switch frame.Type {
	case models.TypeJoinNote:
		var p models.JoinNote
		if err := decode(frame, &p); err != nil {
			c.Send(errFrame(err.Error()))
			return
		}
		h.handleJoin(ctx, c, p)

	case models.TypeContentChange:
		var p models.ContentChange
		if err := decode(frame, &p); err != nil {
			c.Send(errFrame(err.Error()))
			return
		}
		h.handleContentChange(ctx, c, p)

	case models.TypeCursorPosition:
		var p models.CursorPosition
		if err := models.DecodeData(frame, &p); err != nil {
			return
		}
		h.handleCursor(c, p)

	case models.TypeSaveNote:
		var p models.SaveNote
		if err := decode(frame, &p); err != nil {
			c.Send(errFrame(err.Error()))
			return
		}
		h.handleSave(ctx, c, p)

	case models.TypeLeaveNote:
		h.handleLeave(c)

	default:
		c.Send(errFrame("unknown message type"))
	}
}

func (h *Handlers) handleJoin(ctx context.Context, c *session.Client, p models.JoinNote) {
	ok, err := h.store.HasPermission(ctx, p.NoteID, c.User.ID, store.LevelRead)
	if errors.Is(err, store.ErrNotFound) {
		c.Send(errFrame("note not found"))
		return
	}
	if err != nil {
		h.log.Error("join permission check failed", "noteId", p.NoteID, "error", err.Error())
		c.Send(errFrame("failed to join note"))
		return
	}
	if !ok {
		c.Send(errFrame("insufficient permissions"))
		return
	}

	room, presence, prev := h.registry.Join(c, p.NoteID)
	if prev != nil {
		prev.Broadcast(c, models.WSFrame{Type: models.TypeUserLeft, Data: models.UserLeft{User: c.User}})
	}

	room.Broadcast(c, models.WSFrame{Type: models.TypeUserJoined, Data: models.UserJoined{User: c.User}})

	connected := make([]models.User, 0, len(presence))
	for _, entry := range presence {
		connected = append(connected, entry.User)
	}
	c.Send(models.WSFrame{Type: models.TypeNoteJoined, Data: models.NoteJoined{
		NoteID:         p.NoteID,
		ConnectedUsers: connected,
	}})
}

func (h *Handlers) handleContentChange(ctx context.Context, c *session.Client, p models.ContentChange) {
	note, err := h.store.GetByID(ctx, p.NoteID)
	if errors.Is(err, store.ErrNotFound) {
		c.Send(errFrame("note not found"))
		return
	}
	if err != nil {
		h.log.Error("content change lookup failed", "noteId", p.NoteID, "error", err.Error())
		c.Send(errFrame("failed to apply change"))
		return
	}
	if !note.HasPermission(c.User.ID, store.LevelWrite) {
		c.Send(errFrame("insufficient write permissions"))
		return
	}

	// Stale write: the sender edited an older version than the store holds.
	if p.Version < note.Version {
		c.Send(models.WSFrame{Type: models.TypeVersionConflict, Data: models.VersionConflict{
			ServerVersion: note.Version,
			ServerContent: note.Content,
		}})
		return
	}

	if room, ok := h.registry.Room(p.NoteID); ok {
		room.Broadcast(c, models.WSFrame{Type: models.TypeContentChanged, Data: models.ContentChanged{
			Content:   *p.Content,
			Selection: p.Selection,
			Version:   note.Version,
			ChangedBy: c.User.Ref(),
			Timestamp: time.Now().UTC(),
		}})
	}

	// Fire-and-forget activity touch; content is only persisted on save-note.
	if h.touch.Allow(p.NoteID) {
		go func() {
			touchCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.store.TouchActivity(touchCtx, p.NoteID); err != nil {
				h.log.Warn("activity touch failed", "noteId", p.NoteID, "error", err.Error())
			}
		}()
	}
}

func (h *Handlers) handleCursor(c *session.Client, p models.CursorPosition) {
	if p.NoteID == "" {
		return
	}
	// Stale cursor from a connection that has since switched rooms.
	current, ok := h.registry.RoomOf(c.ID)
	if !ok || current != p.NoteID {
		return
	}

	if room, ok := h.registry.Room(p.NoteID); ok {
		room.Broadcast(c, models.WSFrame{Type: models.TypeCursorMoved, Data: models.CursorMoved{
			Position:  p.Position,
			Selection: p.Selection,
			User:      c.User,
		}})
	}
}

func (h *Handlers) handleSave(ctx context.Context, c *session.Client, p models.SaveNote) {
	note, err := h.store.GetByID(ctx, p.NoteID)
	if errors.Is(err, store.ErrNotFound) {
		c.Send(errFrame("note not found"))
		return
	}
	if err != nil {
		h.log.Error("save lookup failed", "noteId", p.NoteID, "error", err.Error())
		c.Send(errFrame("failed to save note"))
		return
	}
	if !note.HasPermission(c.User.ID, store.LevelWrite) {
		c.Send(errFrame("insufficient write permissions"))
		return
	}

	version, err := h.store.Persist(ctx, p.NoteID, store.Update{Content: p.Content, Title: p.Title})
	if err != nil {
		h.log.Error("persist failed", "noteId", p.NoteID, "error", err.Error())
		c.Send(errFrame("failed to save note"))
		return
	}

	saved := models.WSFrame{Type: models.TypeNoteSaved, Data: models.NoteSaved{
		NoteID:    p.NoteID,
		Version:   version,
		SavedBy:   c.User.Ref(),
		Timestamp: time.Now().UTC(),
	}}
	if room, ok := h.registry.Room(p.NoteID); ok {
		room.BroadcastAll(saved)
	} else {
		c.Send(saved)
	}
}

func (h *Handlers) handleLeave(c *session.Client) {
	room, ok := h.registry.Leave(c)
	if !ok {
		return
	}
	room.Broadcast(c, models.WSFrame{Type: models.TypeUserLeft, Data: models.UserLeft{User: c.User}})
}

type validator interface{ Validate() error }

// decode unpacks a frame payload and runs its boundary validation.
func decode(frame models.WSFrame, out validator) error {
	if err := models.DecodeData(frame, out); err != nil {
		return errors.New("malformed payload")
	}
	return out.Validate()
}

func errFrame(msg string) models.WSFrame {
	return models.WSFrame{Type: models.TypeError, Data: models.ErrorPayload{Message: msg}}
}
