package supplier

import (
	"errors"
	"sync"
	"time"

	"github.com/printworks/relay/internal/config"
)

var ErrConnectionClosed = errors.New("supplier connection is closed")

// Connection binds one supplier account to its transport and carries the
// immutable per-account dispatch settings. It is created at startup and
// closed exactly once at shutdown; Close is safe to call twice.
type Connection struct {
	Account          string
	ClusterNode      string
	ProxyEndpoint    string
	Printers         config.PrinterMapConfig
	ChargeToStudents bool

	holdPrinters   map[string]bool
	ticketPrinters map[string]bool

	rpc    Service
	mu     sync.Mutex
	closed bool
}

func NewConnection(cfg config.ConnectionConfig, rpc Service) *Connection {
	hold := make(map[string]bool, len(cfg.HoldPrinters))
	for _, name := range cfg.HoldPrinters {
		hold[name] = true
	}
	ticket := make(map[string]bool, len(cfg.TicketPrinters))
	for _, name := range cfg.TicketPrinters {
		ticket[name] = true
	}

	return &Connection{
		Account:          cfg.Account,
		ClusterNode:      cfg.ClusterNode,
		ProxyEndpoint:    cfg.ProxyEndpoint,
		Printers:         cfg.Printers,
		ChargeToStudents: cfg.ChargeToStudents,
		holdPrinters:     hold,
		ticketPrinters:   ticket,
		rpc:              rpc,
	}
}

// Connect builds the connection for one configured account, choosing the
// simulator when simulate mode is on.
func Connect(cfg config.ConnectionConfig, simulate bool, timeout time.Duration) *Connection {
	var rpc Service
	if simulate {
		rpc = NewSimulator(cfg.Account)
	} else {
		rpc = NewClient(cfg.Endpoint, cfg.Account, timeout)
	}
	return NewConnection(cfg, rpc)
}

// RequiresRelease reports whether printing on the named printer needs an
// operator or user release step before anything physical happens.
func (c *Connection) RequiresRelease(name string) bool {
	return c.holdPrinters[name] || c.ticketPrinters[name]
}

// InCluster reports whether this connection participates in a cluster.
func (c *Connection) InCluster() bool {
	return c.ClusterNode != "" || c.ProxyEndpoint != ""
}

func (c *Connection) GetJobTicket() (*JobTicket, error) {
	if c.isClosed() {
		return nil, ErrConnectionClosed
	}
	return c.rpc.GetJobTicket()
}

func (c *Connection) ReportDocumentStatus(documentID string, status DocumentStatus, comment string) error {
	if c.isClosed() {
		return ErrConnectionClosed
	}
	return c.rpc.ReportDocumentStatus(documentID, status, comment)
}

func (c *Connection) DownloadDocument(doc *Document) ([]byte, error) {
	if c.isClosed() {
		return nil, ErrConnectionClosed
	}
	return c.rpc.DownloadDocument(doc)
}

func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *Connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
