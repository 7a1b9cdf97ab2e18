package pool

import (
	"net/http"
	"sync/atomic"
	"time"
)

// Conn is a leased download connection for one key (agent host).
type Conn struct {
	id        uint64
	key       string
	transport *http.Transport
	client    *http.Client
	idleSince time.Time
	released  atomic.Bool
}

func newConn(id uint64, key string, idleTimeout time.Duration) *Conn {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxConnsPerHost:     1,
		MaxIdleConnsPerHost: 1,
		IdleConnTimeout:     idleTimeout,
		DisableCompression:  true,
	}
	return &Conn{
		id:        id,
		key:       key,
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
}

// ID identifies the underlying connection across leases.
func (c *Conn) ID() uint64 { return c.id }

// Key returns the key the connection was acquired for.
func (c *Conn) Key() string { return c.key }

// Client returns an HTTP client bound to this connection.
func (c *Conn) Client() *http.Client { return c.client }

func (c *Conn) close() {
	c.transport.CloseIdleConnections()
}
