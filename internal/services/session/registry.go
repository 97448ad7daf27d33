package session

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/thefall/sessionserver/internal/dependencies/random"
	"github.com/thefall/sessionserver/internal/model"
)

// Conn is one live duplex connection as seen by the registry
type Conn interface {
	ID() model.ConnID
	// Send queues a message; false means it was dropped
	Send(msg []byte) bool
	RemoteAddr() string
}

// NewConnID returns a fresh, time-ordered connection id
func NewConnID(now time.Time) model.ConnID {
	return model.ConnID(random.ULID(now))
}

// Registry maps live connections to their authenticated identities
type Registry struct {
	mu         sync.RWMutex
	conns      map[model.ConnID]Conn
	identities map[model.ConnID]*model.Identity
	byUser     map[string]map[model.ConnID]struct{}
	watches    map[model.ConnID]model.GameID // Connections waiting for a game to finish
	logger     *slog.Logger
}

// NewRegistry creates an empty Registry
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		conns:      make(map[model.ConnID]Conn),
		identities: make(map[model.ConnID]*model.Identity),
		byUser:     make(map[string]map[model.ConnID]struct{}),
		watches:    make(map[model.ConnID]model.GameID),
		logger:     logger.With(slog.String("component", "session")),
	}
}

// Add registers a freshly accepted connection
func (r *Registry) Add(conn Conn) {
	r.mu.Lock()
	r.conns[conn.ID()] = conn
	total := len(r.conns)
	r.mu.Unlock()

	r.logger.Debug("connection added",
		slog.String("conn_id", string(conn.ID())),
		slog.String("remote_addr", conn.RemoteAddr()),
		slog.Int("total_connections", total))
}

// Remove forgets a connection and returns the identity that was bound to it, if any
func (r *Registry) Remove(id model.ConnID) (*model.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, id)
	delete(r.watches, id)
	identity, ok := r.unbindLocked(id)
	return identity, ok
}

// Conn returns the connection with the given id
func (r *Registry) Conn(id model.ConnID) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[id]
	return conn, ok
}

// Bind attaches an identity to a connection, replacing any previous one
func (r *Registry) Bind(id model.ConnID, identity *model.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unbindLocked(id)
	r.identities[id] = identity.Clone()
	set, ok := r.byUser[identity.Username]
	if !ok {
		set = make(map[model.ConnID]struct{})
		r.byUser[identity.Username] = set
	}
	set[id] = struct{}{}

	r.logger.Info("identity bound",
		slog.String("conn_id", string(id)),
		slog.String("username", identity.Username))
}

// Unbind detaches the identity from a connection and returns it
func (r *Registry) Unbind(id model.ConnID) (*model.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unbindLocked(id)
}

func (r *Registry) unbindLocked(id model.ConnID) (*model.Identity, bool) {
	identity, ok := r.identities[id]
	if !ok {
		return nil, false
	}
	delete(r.identities, id)
	if set, ok := r.byUser[identity.Username]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(r.byUser, identity.Username)
		}
	}
	return identity, true
}

// Identity returns a copy of the identity bound to a connection
func (r *Registry) Identity(id model.ConnID) (*model.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok {
		return nil, false
	}
	return identity.Clone(), true
}

// Authenticate checks that the connection is bound to username with the given token
func (r *Registry) Authenticate(id model.ConnID, username, token string) (*model.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	identity, ok := r.identities[id]
	if !ok || token == "" || identity.Username != username || identity.Token != token {
		return nil, model.ErrAuthentication
	}
	return identity.Clone(), nil
}

// Update edits the identity bound to a connection in place
func (r *Registry) Update(id model.ConnID, edit func(*model.Identity)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	identity, ok := r.identities[id]
	if ok {
		edit(identity)
	}
	return ok
}

// UpdateUser edits every identity bound to username and returns how many were changed
func (r *Registry) UpdateUser(username string, edit func(*model.Identity)) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id := range r.byUser[username] {
		edit(r.identities[id])
		n++
	}
	return n
}

// ConnsFor returns the live connections of a user
func (r *Registry) ConnsFor(username string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]Conn, 0, len(r.byUser[username]))
	for _, id := range slices.Sorted(maps.Keys(r.byUser[username])) {
		if conn, ok := r.conns[id]; ok {
			conns = append(conns, conn)
		}
	}
	return conns
}

// IsOnline reports whether the user has at least one authenticated connection
func (r *Registry) IsOnline(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[username]) > 0
}

// SendTo delivers a message to every connection of a user and returns how many accepted it
func (r *Registry) SendTo(username string, msg []byte) int {
	sent := 0
	for _, conn := range r.ConnsFor(username) {
		if conn.Send(msg) {
			sent++
		} else {
			r.logger.Warn("message dropped - connection buffer full",
				slog.String("conn_id", string(conn.ID())),
				slog.String("username", username))
		}
	}
	return sent
}

// Broadcast delivers a message to every listed user except the excluded one
func (r *Registry) Broadcast(usernames []string, msg []byte, exclude string) int {
	sent := 0
	for _, username := range usernames {
		if username == exclude {
			continue
		}
		sent += r.SendTo(username, msg)
	}
	return sent
}

// WatchFinish enrols a connection to hear when a game finishes
func (r *Registry) WatchFinish(id model.ConnID, game model.GameID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conns[id]; ok {
		r.watches[id] = game
	}
}

// Watches returns a snapshot of the finish-watch list
func (r *Registry) Watches() map[model.ConnID]model.GameID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return maps.Clone(r.watches)
}

// Unwatch removes a connection from the finish-watch list
func (r *Registry) Unwatch(id model.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.watches, id)
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Authenticated returns the number of connections with a bound identity
func (r *Registry) Authenticated() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}
