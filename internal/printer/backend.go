package printer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/supplier"
)

var (
	ErrPrinterNotFound  = errors.New("printer not found")
	ErrPrinterOffline   = errors.New("printer is offline")
	ErrConnectionFailed = errors.New("connection failed")
	ErrMediaMismatch    = errors.New("printer has no matching media configuration")
)

const (
	defaultTCPPort       = 9100
	defaultSubmitTimeout = 10 * time.Second
)

// SubmitOptions carries the physical options for one submission unit.
type SubmitOptions struct {
	Media   supplier.MediaSize
	Duplex  bool
	Color   bool
	Copies  int
	Collate bool
}

// Backend is the print backend collaborator: capability lookup plus raw
// submission. The TCP backend and test fakes implement it.
type Backend interface {
	Capabilities(ctx context.Context, printerName string) (*db.Printer, error)
	Submit(ctx context.Context, printerName, jobName string, payload []byte, opts SubmitOptions) error
}

// TCPBackend submits jobs to network printers over raw TCP, reusing one
// connection per printer until it fails.
type TCPBackend struct {
	mu          sync.Mutex
	connections map[string]net.Conn
	timeout     time.Duration
}

func NewTCPBackend(timeout time.Duration) *TCPBackend {
	if timeout <= 0 {
		timeout = defaultSubmitTimeout
	}
	return &TCPBackend{
		connections: make(map[string]net.Conn),
		timeout:     timeout,
	}
}

func (b *TCPBackend) Capabilities(ctx context.Context, printerName string) (*db.Printer, error) {
	p, err := db.Printers.GetPrinterByName(ctx, printerName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrPrinterNotFound, printerName)
		}
		return nil, err
	}
	return p, nil
}

func (b *TCPBackend) Submit(ctx context.Context, printerName, jobName string, payload []byte, opts SubmitOptions) error {
	p, err := b.Capabilities(ctx, printerName)
	if err != nil {
		return err
	}
	if p.Media != string(opts.Media) {
		return fmt.Errorf("%w: printer %s loads %s, job needs %s",
			ErrMediaMismatch, printerName, p.Media, opts.Media)
	}

	conn, err := b.connect(p)
	if err != nil {
		return err
	}

	_ = conn.SetDeadline(time.Now().Add(b.timeout))

	header := []byte(fmt.Sprintf("%%job:%s copies:%d duplex:%t collate:%t\n",
		jobName, opts.Copies, opts.Duplex, opts.Collate))
	if _, err := conn.Write(append(header, payload...)); err != nil {
		b.disconnect(p.Name)
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	_ = db.Printers.UpdateStatus(ctx, p.Name, "online")
	return nil
}

func (b *TCPBackend) connect(p *db.Printer) (net.Conn, error) {
	b.mu.Lock()
	if conn, ok := b.connections[p.Name]; ok && conn != nil {
		b.mu.Unlock()
		return conn, nil
	}
	b.mu.Unlock()

	port := p.Port
	if port == 0 {
		port = defaultTCPPort
	}

	conn, err := net.DialTimeout("tcp", fmt.Sprintf("%s:%d", p.Address, port), b.timeout)
	if err != nil {
		_ = db.Printers.UpdateStatus(context.Background(), p.Name, "offline")
		return nil, fmt.Errorf("%w: %v", ErrPrinterOffline, err)
	}

	b.mu.Lock()
	b.connections[p.Name] = conn
	b.mu.Unlock()

	return conn, nil
}

func (b *TCPBackend) disconnect(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conn, ok := b.connections[name]; ok {
		if conn != nil {
			conn.Close()
		}
		delete(b.connections, name)
	}
}

func (b *TCPBackend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, conn := range b.connections {
		if conn != nil {
			conn.Close()
		}
		delete(b.connections, name)
	}
}
