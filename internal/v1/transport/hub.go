package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/metrics"
	"github.com/scorecast/scorecast/internal/v1/ratelimit"
	"github.com/scorecast/scorecast/internal/v1/types"
)

// pendingBroadcast is a batched message awaiting the next flush.
type pendingBroadcast struct {
	msg     *Message
	exclude *Session
}

// Hub serves as the central coordinator for all sessions and rooms. The user
// map is latest-wins: a second handshake for the same user evicts the first
// session. Rooms can be registered ahead of their first member so broadcasts
// issued between HTTP room creation and the host's connect are not lost.
type Hub struct {
	opts          Options
	validator     types.TokenValidator   // JWT authentication service
	rateLimiter   *ratelimit.RateLimiter // nil disables connection rate limiting
	coalesceKinds map[string]struct{}

	mu       sync.RWMutex                     // Protects sessions and rooms maps
	sessions map[string]*Session              // Registry of sessions by user id
	rooms    map[string]map[*Session]struct{} // Registry of room members by room id

	pendingMu sync.Mutex
	pending   map[string][]pendingBroadcast // Per-room batch queues

	done     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a new Hub and starts its batch flusher. Callers must invoke
// Shutdown to stop the flusher.
func NewHub(validator types.TokenValidator, rateLimiter *ratelimit.RateLimiter, opts Options) *Hub {
	opts = opts.withDefaults()

	coalesceKinds := make(map[string]struct{}, len(opts.CoalesceKinds))
	for _, kind := range opts.CoalesceKinds {
		coalesceKinds[kind] = struct{}{}
	}

	h := &Hub{
		opts:          opts,
		validator:     validator,
		rateLimiter:   rateLimiter,
		coalesceKinds: coalesceKinds,
		sessions:      make(map[string]*Session),
		rooms:         make(map[string]map[*Session]struct{}),
		pending:       make(map[string][]pendingBroadcast),
		done:          make(chan struct{}),
	}

	go h.runFlusher()

	return h
}

func (h *Hub) coalesces(kind string) bool {
	_, ok := h.coalesceKinds[kind]
	return ok
}

// RegisterRoom ensures a room entry exists. It is an idempotent hint from
// the control plane so broadcasts issued before the first member connects
// are not dropped as "unknown room".
func (h *Hub) RegisterRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; ok {
		return
	}
	h.rooms[roomID] = make(map[*Session]struct{})
	metrics.ActiveRooms.Inc()
	logging.Info(context.Background(), "room registered", zap.String("room_id", roomID))
}

// Broadcast delivers a message to every member of a room except exclude.
// Critical kinds go out synchronously; coalescable kinds are handed to each
// session's coalescing buffer; everything else joins the room's batch queue
// for the next flush. Broadcasts to unknown rooms are dropped with a warning.
func (h *Hub) Broadcast(roomID string, msg *Message, exclude *Session) {
	h.mu.RLock()
	_, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		logging.Warn(context.Background(), "dropping broadcast to unknown room",
			zap.String("room_id", roomID), zap.String("kind", msg.Kind))
		return
	}

	if msg.Critical() || h.coalesces(msg.Kind) {
		h.deliver(roomID, msg, exclude)
		return
	}

	h.pendingMu.Lock()
	h.pending[roomID] = append(h.pending[roomID], pendingBroadcast{msg: msg, exclude: exclude})
	h.pendingMu.Unlock()
}

// BroadcastSongUpdated fans out song metadata to a room. Image bytes never
// travel over the socket; clients conditional-GET the page image when
// image_etag changes.
func (h *Hub) BroadcastSongUpdated(roomID string, meta UpdateMeta) {
	h.Broadcast(roomID, SongUpdated(meta), nil)
}

// BroadcastPageUpdated fans out a page turn to a room.
func (h *Hub) BroadcastPageUpdated(roomID string, meta UpdateMeta) {
	h.Broadcast(roomID, PageUpdated(meta), nil)
}

// BroadcastParticipantJoined announces an HTTP-side join. The join endpoint
// is the authoritative source of these; the WebSocket join handler never
// emits them.
func (h *Hub) BroadcastParticipantJoined(roomID, userID string) {
	h.Broadcast(roomID, ParticipantJoined(userID), nil)
}

// BroadcastParticipantLeft announces an HTTP-side leave, excluding the
// leaver's own session when one is connected.
func (h *Hub) BroadcastParticipantLeft(roomID, userID string) {
	h.mu.RLock()
	exclude := h.sessions[userID]
	h.mu.RUnlock()
	h.Broadcast(roomID, ParticipantLeft(userID), exclude)
}

// CloseRoom tells every member the room is gone, then drops the room entry
// and any batched messages still pending for it. Sessions stay connected and
// become roomless.
func (h *Hub) CloseRoom(roomID, reason string) {
	h.Broadcast(roomID, RoomClosed(roomID, reason), nil)

	h.mu.Lock()
	room, ok := h.rooms[roomID]
	if ok {
		for s := range room {
			s.setRoom("")
		}
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomMembers.DeleteLabelValues(roomID)
	}
	h.mu.Unlock()

	if ok {
		h.clearPending(roomID)
		logging.Info(context.Background(), "room closed",
			zap.String("room_id", roomID), zap.String("reason", reason))
	}
}

// deliver snapshots the membership set and enqueues outside the lock, so
// broadcast fan-out never stalls membership changes.
func (h *Hub) deliver(roomID string, msg *Message, exclude *Session) {
	h.mu.RLock()
	room, ok := h.rooms[roomID]
	if !ok {
		h.mu.RUnlock()
		logging.Warn(context.Background(), "dropping broadcast to unknown room",
			zap.String("room_id", roomID), zap.String("kind", msg.Kind))
		return
	}
	targets := make([]*Session, 0, len(room))
	for s := range room {
		if s == exclude {
			continue
		}
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	metrics.BroadcastFanout.Observe(float64(len(targets)))
	for _, s := range targets {
		s.Enqueue(msg)
	}
}

// joinRoom adds a session to a room, creating the room if needed. A session
// already in a different room leaves it silently first.
func (h *Hub) joinRoom(s *Session, roomID string) {
	h.mu.Lock()
	prev := s.Room()
	var prevDeleted bool
	if prev != "" && prev != roomID {
		prevDeleted = h.removeFromRoomLocked(s, prev)
	}

	room, ok := h.rooms[roomID]
	if !ok {
		room = make(map[*Session]struct{})
		h.rooms[roomID] = room
		metrics.ActiveRooms.Inc()
	}
	room[s] = struct{}{}
	s.setRoom(roomID)
	metrics.RoomMembers.WithLabelValues(roomID).Set(float64(len(room)))
	h.mu.Unlock()

	if prevDeleted {
		h.clearPending(prev)
	}

	logging.Info(s.ctx, "session joined room", zap.String("room_id", roomID))
	s.Enqueue(JoinRoomSuccess(roomID))
}

// leaveRoom removes a session from its room, announcing the departure to the
// remaining members before membership changes.
func (h *Hub) leaveRoom(s *Session) {
	h.mu.Lock()
	roomID := s.Room()
	if roomID == "" {
		h.mu.Unlock()
		s.Enqueue(ErrorMessage("Not in any room"))
		return
	}

	h.enqueueRoomLocked(roomID, ParticipantLeft(s.userID), s)
	deleted := h.removeFromRoomLocked(s, roomID)
	s.setRoom("")
	h.mu.Unlock()

	if deleted {
		h.clearPending(roomID)
	}

	logging.Info(s.ctx, "session left room", zap.String("room_id", roomID))
	s.Enqueue(RoomLeft(roomID))
}

// handleDisconnect runs from the reader's teardown path. The departure is
// announced to the remaining members before membership is released. The user
// map entry is only cleared when it still points at this session, so an
// eviction replacement is never erased by its predecessor.
func (h *Hub) handleDisconnect(s *Session) {
	h.mu.Lock()
	if cur, ok := h.sessions[s.userID]; ok && cur == s {
		delete(h.sessions, s.userID)
	}

	roomID := s.Room()
	var deleted bool
	if roomID != "" {
		h.enqueueRoomLocked(roomID, ParticipantLeft(s.userID), s)
		deleted = h.removeFromRoomLocked(s, roomID)
		s.setRoom("")
	}
	h.mu.Unlock()

	if deleted {
		h.clearPending(roomID)
	}
}

// enqueueRoomLocked enqueues a critical message to every member except
// exclude. Callers hold h.mu.
func (h *Hub) enqueueRoomLocked(roomID string, msg *Message, exclude *Session) {
	room, ok := h.rooms[roomID]
	if !ok {
		return
	}
	for member := range room {
		if member == exclude {
			continue
		}
		member.Enqueue(msg)
	}
}

// removeFromRoomLocked drops a session from a room and reports whether the
// room entry was deleted because it became empty. Callers hold h.mu and are
// responsible for clearing pending batches after releasing it.
func (h *Hub) removeFromRoomLocked(s *Session, roomID string) bool {
	room, ok := h.rooms[roomID]
	if !ok {
		return false
	}
	delete(room, s)
	if len(room) == 0 {
		delete(h.rooms, roomID)
		metrics.ActiveRooms.Dec()
		metrics.RoomMembers.DeleteLabelValues(roomID)
		return true
	}
	metrics.RoomMembers.WithLabelValues(roomID).Set(float64(len(room)))
	return false
}

// registerSession installs a session in the user map, evicting and closing
// any previous session for the same user.
func (h *Hub) registerSession(s *Session) {
	h.mu.Lock()
	prev := h.sessions[s.userID]
	h.sessions[s.userID] = s
	h.mu.Unlock()

	if prev != nil && prev != s {
		logging.Info(prev.ctx, "evicting replaced session")
		prev.closeWithCode(websocket.CloseNormalClosure, "session replaced")
	}
}

func (h *Hub) clearPending(roomID string) {
	h.pendingMu.Lock()
	delete(h.pending, roomID)
	h.pendingMu.Unlock()
}

func (h *Hub) runFlusher() {
	ticker := time.NewTicker(h.opts.BatchFlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.flushPending()
		}
	}
}

// flushPending swaps out the batch queues, then delivers each room's batch.
// One pending message is delivered as-is; several are wrapped into a single
// batched_update frame per session.
func (h *Hub) flushPending() {
	h.pendingMu.Lock()
	if len(h.pending) == 0 {
		h.pendingMu.Unlock()
		return
	}
	pending := h.pending
	h.pending = make(map[string][]pendingBroadcast)
	h.pendingMu.Unlock()

	for roomID, entries := range pending {
		h.deliverBatch(roomID, entries)
	}
}

func (h *Hub) deliverBatch(roomID string, entries []pendingBroadcast) {
	if len(entries) == 0 {
		return
	}
	metrics.BatchSize.Observe(float64(len(entries)))

	// Group by exclusion so each excluded session still misses exactly the
	// messages addressed around it. In practice nearly every batched message
	// has no exclusion and this is a single group.
	type batchGroup struct {
		exclude *Session
		msgs    []*Message
	}
	var groups []batchGroup
	index := make(map[*Session]int)
	for _, entry := range entries {
		if i, ok := index[entry.exclude]; ok {
			groups[i].msgs = append(groups[i].msgs, entry.msg)
			continue
		}
		index[entry.exclude] = len(groups)
		groups = append(groups, batchGroup{exclude: entry.exclude, msgs: []*Message{entry.msg}})
	}

	for _, g := range groups {
		if len(g.msgs) == 1 {
			h.deliver(roomID, g.msgs[0], g.exclude)
			continue
		}
		h.deliver(roomID, newBatchedUpdate(g.msgs), g.exclude)
	}
}

// SessionCount returns the number of registered sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// RoomCount returns the number of live room entries.
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// RoomMembers returns the user ids currently joined to a room over
// WebSocket. Order is unspecified.
func (h *Hub) RoomMembers(roomID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	room := h.rooms[roomID]
	members := make([]string, 0, len(room))
	for s := range room {
		members = append(members, s.userID)
	}
	return members
}

// Shutdown stops the batch flusher, delivers anything still pending, and
// closes every room. The connections themselves are torn down by the HTTP
// server's shutdown.
func (h *Hub) Shutdown(ctx context.Context) error {
	logging.Info(ctx, "Shutting down Hub - closing all active rooms...")

	h.stopOnce.Do(func() {
		close(h.done)
	})

	h.flushPending()

	h.mu.RLock()
	roomIDs := make([]string, 0, len(h.rooms))
	for id := range h.rooms {
		roomIDs = append(roomIDs, id)
	}
	h.mu.RUnlock()

	for _, id := range roomIDs {
		h.CloseRoom(id, "Server shutting down")
	}

	logging.Info(ctx, "All rooms closed", zap.Int("count", len(roomIDs)))
	return nil
}
