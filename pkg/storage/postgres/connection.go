// Package postgres opens the Postgres connections used by the audit log.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/edugatenow/edugate/pkg/storage"
)

// ConnectionManager holds the primary audit database and optional read replicas.
// Audit writes go to the primary; audit searches may use a replica.
type ConnectionManager struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32
	mu       sync.RWMutex
	config   ConnectionConfig
}

// ConnectionConfig holds database connection configuration
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// ConfigFromStorage builds a ConnectionConfig from storage settings.
// replicaURLs is a comma separated list and may be empty.
func ConfigFromStorage(cfg storage.Config, replicaURLs string) ConnectionConfig {
	var replicas []string
	for _, u := range strings.Split(replicaURLs, ",") {
		if u = strings.TrimSpace(u); u != "" {
			replicas = append(replicas, u)
		}
	}
	timeout := cfg.PostgresTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return ConnectionConfig{
		PrimaryURL:  cfg.PostgresURL,
		ReplicaURLs: replicas,
		MaxConns:    cfg.PostgresMaxConns,
		MinConns:    cfg.PostgresMinConns,
		Timeout:     timeout,
		MaxLifetime: 30 * time.Minute,
		MaxIdleTime: 5 * time.Minute,
	}
}

// NewConnectionManager connects to the primary and any reachable replicas
func NewConnectionManager(ctx context.Context, config ConnectionConfig) (*ConnectionManager, error) {
	primary, err := open(ctx, config.PrimaryURL, config.MaxConns, config)
	if err != nil {
		return nil, fmt.Errorf("primary: %w", err)
	}

	cm := &ConnectionManager{
		primary: primary,
		config:  config,
	}

	for i, url := range config.ReplicaURLs {
		maxConns := config.MaxConns / 2
		if maxConns < 2 {
			maxConns = 2
		}
		replica, err := open(ctx, url, maxConns, config)
		if err != nil {
			// Replicas are optional; searches fall back to the primary.
			fmt.Printf("Warning: skipping audit replica %d: %v\n", i, err)
			continue
		}
		cm.replicas = append(cm.replicas, replica)
	}

	return cm, nil
}

// NewFromDB wraps existing handles, mainly for tests
func NewFromDB(primary *sql.DB, replicas ...*sql.DB) *ConnectionManager {
	return &ConnectionManager{primary: primary, replicas: replicas}
}

func open(ctx context.Context, url string, maxConns int, config ConnectionConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(config.MinConns)
	db.SetConnMaxLifetime(config.MaxLifetime)
	db.SetConnMaxIdleTime(config.MaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

// Primary returns the primary connection (audit inserts, retention)
func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	if len(cm.replicas) == 0 {
		return cm.primary
	}
	index := atomic.AddUint32(&cm.current, 1)
	return cm.replicas[int(index%uint32(len(cm.replicas)))]
}

// HealthCheck pings the primary and reports when every replica is down
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	cm.mu.RLock()
	replicas := append([]*sql.DB(nil), cm.replicas...)
	cm.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}
	return nil
}

// Close closes every connection
func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var errs []string
	for _, replica := range cm.replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	cm.replicas = nil
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("close connections: %s", strings.Join(errs, "; "))
	}
	return nil
}
