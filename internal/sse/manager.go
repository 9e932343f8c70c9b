package sse

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/booknestapp/booknest-server/internal/id"
	"github.com/booknestapp/booknest-server/internal/logger"
)

// ErrShutdown is returned by Connect once the manager is shutting down.
var ErrShutdown = errors.New("sse manager shut down")

// Client represents a connected SSE client.
type Client struct {
	ConnectedAt time.Time
	// Done is closed when the manager ends the connection.
	Done   chan struct{}
	ID     string
	UserID string
	once   sync.Once
}

func (c *Client) close() {
	c.once.Do(func() { close(c.Done) })
}

// Manager tracks open SSE connections so they can be counted and closed on
// shutdown.
type Manager struct {
	clients           map[string]*Client
	logger            *slog.Logger
	heartbeatInterval time.Duration
	mu                sync.RWMutex
	shutdown          bool
}

// NewManager creates a new SSE Manager.
func NewManager(log *slog.Logger) *Manager {
	return &Manager{
		clients:           make(map[string]*Client),
		logger:            logger.OrDiscard(log).With("component", "sse"),
		heartbeatInterval: 30 * time.Second,
	}
}

// Connect registers a new SSE client for userID (empty for anonymous).
func (m *Manager) Connect(userID string) (*Client, error) {
	clientID, err := id.Generate("sse")
	if err != nil {
		return nil, err
	}

	client := &Client{
		ID:          clientID,
		UserID:      userID,
		Done:        make(chan struct{}),
		ConnectedAt: time.Now(),
	}

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		return nil, ErrShutdown
	}
	m.clients[client.ID] = client
	totalClients := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("SSE client connected",
		slog.String("client_id", clientID),
		slog.String("user_id", userID),
		slog.Int("total_clients", totalClients))
	return client, nil
}

// Disconnect removes a client.
func (m *Manager) Disconnect(clientID string) {
	m.mu.Lock()
	client, ok := m.clients[clientID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.clients, clientID)
	totalClients := len(m.clients)
	m.mu.Unlock()

	client.close()

	m.logger.Info("SSE client disconnected",
		slog.String("client_id", clientID),
		slog.Duration("duration", time.Since(client.ConnectedAt)),
		slog.Int("total_clients", totalClients))
}

// ClientCount returns the number of open connections.
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// Shutdown refuses new connections and closes the open ones. It waits for
// their handlers to disconnect until ctx ends.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("SSE manager shutdown initiated")

	m.mu.Lock()
	m.shutdown = true
	for _, client := range m.clients {
		client.close()
	}
	m.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for m.ClientCount() > 0 {
		select {
		case <-ctx.Done():
			m.logger.Warn("SSE shutdown timeout, clients still connected", slog.Int("clients", m.ClientCount()))
			return ctx.Err()
		case <-ticker.C:
		}
	}

	m.logger.Info("SSE manager shutdown complete")
	return nil
}
