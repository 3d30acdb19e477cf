package realtime

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Server-to-client event names. Payloads are the JSON-serialized entities.
const (
	EventTodoCreated  = "todo:created"
	EventTodoUpdated  = "todo:updated"
	EventTodoDeleted  = "todo:deleted"
	EventTodoShared   = "todo:shared"
	EventTodoComment  = "todo:comment"
	EventNotification = "notification"
)

var (
	errMissingRegistry = errors.New("realtime: connection registry is required")
	errMissingResolver = errors.New("realtime: access resolver is required")

	// ErrUnknownConnection indicates an operation referenced a connection
	// that is not currently admitted.
	ErrUnknownConnection = errors.New("realtime: unknown connection")
)

// AccessResolver decides whether a user may observe a todo's events.
// *todos.Service satisfies it.
type AccessResolver interface {
	CanAccess(ctx context.Context, todoID, userID string) (bool, error)
}

// Sender is one admitted connection's outbound half. Implementations must be
// safe for concurrent Send calls; a returned error means the transport is no
// longer reachable.
type Sender interface {
	Send(event string, payload any) error
	Close() error
}

// GatewayConfig describes the dependencies of the realtime gateway.
type GatewayConfig struct {
	Registry *Registry
	Resolver AccessResolver
	Logger   *zap.Logger
}

// Gateway tracks admitted connections and their room membership, and fans
// events out to them. It is constructed once at bootstrap and passed to every
// handler that emits; there is no package-level instance. Rooms live only in
// memory and start empty after a restart; clients re-join on reconnect.
type Gateway struct {
	registry *Registry
	resolver AccessResolver
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session            // connectionID -> admitted session
	rooms    map[string]map[string]struct{} // todoID -> set of connectionID
	joined   map[string]map[string]struct{} // connectionID -> set of todoID
}

type session struct {
	userID string
	sender Sender
}

// NewGateway constructs the gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	if cfg.Resolver == nil {
		return nil, errMissingResolver
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		registry: cfg.Registry,
		resolver: cfg.Resolver,
		logger:   logger,
		sessions: make(map[string]*session),
		rooms:    make(map[string]map[string]struct{}),
		joined:   make(map[string]map[string]struct{}),
	}, nil
}

// Connect registers the connection row and admits the sender. The caller
// must have authenticated the user already; a registered row and an admitted
// session always appear together. Reusing a live connection id evicts the
// previous session entirely, so nothing addressed to the old user can reach
// the new one.
func (g *Gateway) Connect(ctx context.Context, connectionID, userID string, sender Sender) error {
	g.mu.Lock()
	if previous, ok := g.sessions[connectionID]; ok {
		g.removeLocked(connectionID)
		_ = previous.sender.Close()
	}
	g.sessions[connectionID] = &session{userID: userID, sender: sender}
	g.mu.Unlock()

	if err := g.registry.Register(ctx, connectionID, userID); err != nil {
		g.mu.Lock()
		g.removeLocked(connectionID)
		g.mu.Unlock()
		return err
	}

	g.logger.Info("connection admitted",
		zap.String("connection_id", connectionID),
		zap.String("user_id", userID))
	return nil
}

// Disconnect drops the session, clears its room membership and deletes the
// connection row. Safe to call for ids that were never admitted.
func (g *Gateway) Disconnect(ctx context.Context, connectionID string) {
	g.mu.Lock()
	current, ok := g.sessions[connectionID]
	g.removeLocked(connectionID)
	g.mu.Unlock()

	if ok {
		_ = current.sender.Close()
	}
	if err := g.registry.Unregister(ctx, connectionID); err != nil {
		g.logger.Error("connection row cleanup failed",
			zap.String("connection_id", connectionID),
			zap.Error(err))
	}
	if ok {
		g.logger.Info("connection closed", zap.String("connection_id", connectionID))
	}
}

// JoinRoom adds the connection to a todo's room after an access check.
// Denied joins are ignored without error; the client simply observes no
// subsequent events.
func (g *Gateway) JoinRoom(ctx context.Context, connectionID, todoID string) error {
	g.mu.RLock()
	current, ok := g.sessions[connectionID]
	g.mu.RUnlock()
	if !ok {
		return ErrUnknownConnection
	}

	allowed, err := g.resolver.CanAccess(ctx, todoID, current.userID)
	if err != nil {
		return err
	}
	if !allowed {
		g.logger.Debug("join denied",
			zap.String("connection_id", connectionID),
			zap.String("todo_id", todoID),
			zap.String("user_id", current.userID))
		return nil
	}

	g.mu.Lock()
	if _, stillAdmitted := g.sessions[connectionID]; stillAdmitted {
		if g.rooms[todoID] == nil {
			g.rooms[todoID] = make(map[string]struct{})
		}
		g.rooms[todoID][connectionID] = struct{}{}
		if g.joined[connectionID] == nil {
			g.joined[connectionID] = make(map[string]struct{})
		}
		g.joined[connectionID][todoID] = struct{}{}
	}
	g.mu.Unlock()
	return nil
}

// LeaveRoom removes the connection from the room; idempotent.
func (g *Gateway) LeaveRoom(connectionID, todoID string) {
	g.mu.Lock()
	if members := g.rooms[todoID]; members != nil {
		delete(members, connectionID)
		if len(members) == 0 {
			delete(g.rooms, todoID)
		}
	}
	if memberships := g.joined[connectionID]; memberships != nil {
		delete(memberships, todoID)
		if len(memberships) == 0 {
			delete(g.joined, connectionID)
		}
	}
	g.mu.Unlock()
}

// EmitToRoom delivers the event to every connection currently in the todo's
// room. Delivery order across connections is unspecified.
func (g *Gateway) EmitToRoom(ctx context.Context, todoID, event string, payload any) {
	g.mu.RLock()
	targets := make(map[string]Sender, len(g.rooms[todoID]))
	for connectionID := range g.rooms[todoID] {
		if current, ok := g.sessions[connectionID]; ok {
			targets[connectionID] = current.sender
		}
	}
	g.mu.RUnlock()

	g.deliver(ctx, targets, event, payload)
}

// EmitToUser delivers the event to every registered connection of the user,
// room membership aside. Used for cross-resource notifications.
func (g *Gateway) EmitToUser(ctx context.Context, userID, event string, payload any) {
	rows, err := g.registry.ListByUser(ctx, userID)
	if err != nil {
		g.logger.Error("recipient lookup failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}

	g.mu.RLock()
	targets := make(map[string]Sender, len(rows))
	for _, row := range rows {
		current, ok := g.sessions[row.ConnectionID]
		if !ok || current.userID != userID {
			continue
		}
		targets[row.ConnectionID] = current.sender
	}
	g.mu.RUnlock()

	g.deliver(ctx, targets, event, payload)
}

// BroadcastAll delivers the event to every admitted connection. No access
// filter is applied; reserve it for payloads every client may see.
func (g *Gateway) BroadcastAll(ctx context.Context, event string, payload any) {
	g.mu.RLock()
	targets := make(map[string]Sender, len(g.sessions))
	for connectionID, current := range g.sessions {
		targets[connectionID] = current.sender
	}
	g.mu.RUnlock()

	g.deliver(ctx, targets, event, payload)
}

// deliver is best effort: a failed send drops the connection and is never
// retried. The notification row remains as the durable fallback.
func (g *Gateway) deliver(ctx context.Context, targets map[string]Sender, event string, payload any) {
	for connectionID, sender := range targets {
		if err := sender.Send(event, payload); err != nil {
			g.logger.Warn("delivery failed, dropping connection",
				zap.String("connection_id", connectionID),
				zap.String("event", event),
				zap.Error(err))
			g.Disconnect(ctx, connectionID)
		}
	}
}

// removeLocked clears the session and all of its room membership. Callers
// hold g.mu.
func (g *Gateway) removeLocked(connectionID string) {
	delete(g.sessions, connectionID)
	for todoID := range g.joined[connectionID] {
		if members := g.rooms[todoID]; members != nil {
			delete(members, connectionID)
			if len(members) == 0 {
				delete(g.rooms, todoID)
			}
		}
	}
	delete(g.joined, connectionID)
}
