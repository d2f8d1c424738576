// Package core provides the fundamental building blocks of the anvil ORM.
// This file defines the connection and transaction manager: named
// connections, health checks, capped-backoff reconnection, and transaction
// lifecycle delegation.
package core

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Connection pairs one driver with its configuration and supervises its
// health. Concurrent callers share the driver's pool; a transaction
// acquires a dedicated handle for its duration through Begin.
type Connection struct {
	name   string
	config Config

	mutex  sync.RWMutex
	driver Driver
	failed bool
}

// NewConnection wraps a connected driver under a name. Entities and
// builders are bound to a Connection explicitly at construction; there is
// no process-wide default adapter.
func NewConnection(name string, driver Driver, config Config) *Connection {
	return &Connection{name: name, config: config.normalized(), driver: driver}
}

// Name returns the connection's registered name.
func (c *Connection) Name() string { return c.name }

// Config returns the connection's configuration.
func (c *Connection) Config() Config { return c.config }

// Driver returns the underlying driver, failing fast with
// ErrConnectionFailed once reconnection attempts are exhausted.
func (c *Connection) Driver() (Driver, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	if c.failed {
		return nil, ErrConnectionFailed
	}
	return c.driver, nil
}

// Ping verifies the backend is reachable. On failure it retries with
// capped exponential backoff; after MaxRetries failures the connection is
// marked failed and every subsequent call fails fast until Reconnect.
func (c *Connection) Ping(ctx context.Context) error {
	driver, err := c.Driver()
	if err != nil {
		return err
	}
	if err := driver.Ping(ctx); err == nil {
		return nil
	}

	delay := c.config.RetryBaseDelay
	const maxDelay = 5 * time.Second
	var lastErr error
	for attempt := 1; attempt <= c.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		if err := driver.Connect(ctx); err != nil {
			lastErr = err
			slog.Warn("anvil: reconnect attempt failed",
				"connection", c.name, "attempt", attempt, "error", err)
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}
		return nil
	}

	c.mutex.Lock()
	c.failed = true
	c.mutex.Unlock()
	return &ConnectionError{Connection: c.name, Cause: lastErr}
}

// Reconnect explicitly clears the failed state and re-establishes the
// driver's handle.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mutex.Lock()
	driver := c.driver
	c.mutex.Unlock()
	if err := driver.Connect(ctx); err != nil {
		return &ConnectionError{Connection: c.name, Cause: err}
	}
	c.mutex.Lock()
	c.failed = false
	c.mutex.Unlock()
	return nil
}

// Close releases the driver's pooled handle.
func (c *Connection) Close(ctx context.Context) error {
	driver, err := c.Driver()
	if err != nil {
		return nil
	}
	return driver.Close(ctx)
}

// Begin starts a transaction on a dedicated handle. The handle must not be
// reused by unrelated queries until Commit or Rollback releases it, which
// the driver enforces by routing only context-carried transactions to it.
func (c *Connection) Begin(ctx context.Context) (Transaction, error) {
	driver, err := c.Driver()
	if err != nil {
		return nil, err
	}
	return driver.Begin(ctx)
}

// TransactionFunc is the callback signature for Transact. Returning an
// error rolls the transaction back; returning nil commits it.
type TransactionFunc func(txCtx context.Context) error

// Transact executes fn inside a transaction, committing on success and
// rolling back on any error. The rollback itself is logged but never
// masks fn's original error.
//
// Example:
//
//	err := conn.Transact(ctx, func(txCtx context.Context) error {
//		if err := user.Save(txCtx); err != nil {
//			return err
//		}
//		return order.Save(txCtx)
//	})
func (c *Connection) Transact(ctx context.Context, fn TransactionFunc) error {
	tx, err := c.Begin(ctx)
	if err != nil {
		return err
	}
	txCtx := WithTransaction(ctx, tx)

	if err := fn(txCtx); err != nil {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
			slog.Error("anvil: rollback failed",
				"connection", c.name, "error", rollbackErr)
		}
		return err
	}
	return tx.Commit(ctx)
}

// Manager owns one Connection per name and designates a default.
type Manager struct {
	mutex       sync.RWMutex
	connections map[string]*Connection
	defaultName string
}

// NewManager creates an empty connection manager.
func NewManager() *Manager {
	return &Manager{connections: make(map[string]*Connection)}
}

// Add registers a connection; the first registered becomes the default.
func (m *Manager) Add(conn *Connection) *Manager {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.connections[conn.name] = conn
	if m.defaultName == "" {
		m.defaultName = conn.name
	}
	return m
}

// SetDefault designates the connection used for empty names.
func (m *Manager) SetDefault(name string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if _, ok := m.connections[name]; !ok {
		return configErrorf("unknown connection %q", name)
	}
	m.defaultName = name
	return nil
}

// Connection returns the named connection, or the default for "".
func (m *Manager) Connection(name string) (*Connection, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if name == "" {
		name = m.defaultName
	}
	conn, ok := m.connections[name]
	if !ok {
		return nil, configErrorf("unknown connection %q", name)
	}
	return conn, nil
}

// HealthCheck pings every connection and reports per-name results.
func (m *Manager) HealthCheck(ctx context.Context) map[string]error {
	m.mutex.RLock()
	names := make([]string, 0, len(m.connections))
	for name := range m.connections {
		names = append(names, name)
	}
	m.mutex.RUnlock()

	results := make(map[string]error, len(names))
	for _, name := range names {
		conn, _ := m.Connection(name)
		results[name] = conn.Ping(ctx)
	}
	return results
}

// CloseAll closes every registered connection, returning the first error.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var firstErr error
	for _, conn := range m.connections {
		if err := conn.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
