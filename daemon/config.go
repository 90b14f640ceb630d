package daemon

import (
	"crypto/tls"
	"log/slog"

	"github.com/duh-rpc/duh-go"
	"github.com/kapetan-io/entityqueue"
	"github.com/kapetan-io/entityqueue/internal/cache"
	"github.com/kapetan-io/entityqueue/internal/entitytype"
	"github.com/kapetan-io/entityqueue/internal/handler"
	"github.com/kapetan-io/entityqueue/internal/store"
	"github.com/kapetan-io/entityqueue/internal/types"
	"github.com/kapetan-io/tackle/clock"
	"github.com/kapetan-io/tackle/set"
)

const (
	DefaultListenAddress  = "localhost:2319"
	DefaultMaxRequestSize = 1_000_000
)

type Config struct {
	// Log is the logging implementation used by the daemon and service
	Log *slog.Logger
	// StorageConfig is the storage where queues and subqueues are kept
	StorageConfig store.Config
	// Cache is where cache tags are invalidated. Defaults to an in memory invalidator
	Cache cache.Invalidator
	// Handlers are the queue handlers available to queues
	Handlers *handler.Registry
	// EntityTypes are the entity types queues may target
	EntityTypes *entitytype.Registry
	// DefaultQueues are the queues loaded from configuration when the daemon starts
	DefaultQueues []types.QueueInfo
	// DefaultActor is the actor used when loading DefaultQueues
	DefaultActor types.Actor
	// Clock is used by the service for timestamps. Overridden in tests
	Clock *clock.Provider
	// Version is reported by the health endpoint
	Version string

	// TLS is the TLS config used for public server and clients
	TLS *duh.TLSConfig
	// ListenAddress is the address:port that entityqueue will listen on for public HTTP requests
	ListenAddress string
	// InMemoryListener when true the daemon accepts connections from an InMemoryListener
	// instead of listening on ListenAddress
	InMemoryListener bool
	// MaxRequestSize is the maximum size in bytes entityqueue will read from a client request.
	// The default size is 1MB.
	MaxRequestSize int64
}

func (c *Config) ClientTLS() *tls.Config {
	if c.TLS != nil {
		return c.TLS.ClientTLS
	}
	return nil
}

func (c *Config) ServerTLS() *tls.Config {
	if c.TLS != nil {
		return c.TLS.ServerTLS
	}
	return nil
}

func (c *Config) SetDefaults() {
	set.Default(&c.Log, slog.Default())
	if c.StorageConfig.Queues == nil {
		c.StorageConfig.Queues = store.NewMemoryQueues(c.Log)
	}
	if c.StorageConfig.Subqueues == nil {
		c.StorageConfig.Subqueues = store.NewMemorySubqueues(c.Log)
	}
	if c.Cache == nil {
		c.Cache = cache.NewMemory()
	}
	set.Default(&c.ListenAddress, DefaultListenAddress)
	set.Default(&c.MaxRequestSize, DefaultMaxRequestSize)
	set.Default(&c.Version, entityqueue.Version)
}
