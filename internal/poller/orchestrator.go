// Package poller runs the heartbeat loop that ties ingestion, routing,
// accounting, chunking, dispatch and completion monitoring together for
// every configured supplier connection.
package poller

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/printworks/relay/internal/cluster"
	"github.com/printworks/relay/internal/config"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/dispatch"
	"github.com/printworks/relay/internal/feed"
	"github.com/printworks/relay/internal/ledger"
	"github.com/printworks/relay/internal/monitor"
	"github.com/printworks/relay/internal/printer"
	"github.com/printworks/relay/internal/supplier"
)

// ErrQuotaModeChanged is returned when the quota-integration mode flips while
// the loop is running. The loop hard-stops; the caller restarts with fresh
// settings.
var ErrQuotaModeChanged = errors.New("quota integration mode changed")

const (
	quotaModeSetting       = "quota_integration"
	disconnectPollInterval = 100 * time.Millisecond
)

type Deps struct {
	Config      config.PollerConfig
	Connections []*supplier.Connection
	Router      *cluster.Router
	Liveness    *cluster.LivenessTable
	Cache       *cluster.ProxyCache
	Proxy       *cluster.ProxyClient
	Dispatcher  *dispatch.Dispatcher
	Monitor     *monitor.Monitor
	Ledger      *ledger.Service
	Quota       printer.QuotaService
	Feed        *feed.Hub
}

// Orchestrator owns the connection registry and the loop flags. One instance
// runs one sequential heartbeat loop; there is no parallelism across
// connections within a tick.
type Orchestrator struct {
	cfg         config.PollerConfig
	connections []*supplier.Connection
	router      *cluster.Router
	liveness    *cluster.LivenessTable
	cache       *cluster.ProxyCache
	proxy       *cluster.ProxyClient
	dispatcher  *dispatch.Dispatcher
	monitor     *monitor.Monitor
	ledger      *ledger.Service
	quota       printer.QuotaService
	feed        *feed.Hub

	mu           sync.Mutex
	shutdown     bool
	disconnected bool
	enabled      bool
	processing   bool
}

func NewOrchestrator(deps Deps) *Orchestrator {
	return &Orchestrator{
		cfg:         deps.Config,
		connections: deps.Connections,
		router:      deps.Router,
		liveness:    deps.Liveness,
		cache:       deps.Cache,
		proxy:       deps.Proxy,
		dispatcher:  deps.Dispatcher,
		monitor:     deps.Monitor,
		ledger:      deps.Ledger,
		quota:       deps.Quota,
		feed:        deps.Feed,
		enabled:     true,
	}
}

// SetEnabled toggles document processing without stopping the loop. A
// disabled orchestrator keeps heartbeating but fetches no tickets.
func (o *Orchestrator) SetEnabled(enabled bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enabled = enabled
}

func (o *Orchestrator) isEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Shutdown requests a cooperative stop. The loop honors it at the next
// heartbeat or between documents.
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.shutdown = true
}

func (o *Orchestrator) isShutdown() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.shutdown
}

func (o *Orchestrator) setProcessing(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.processing = v
}

func (o *Orchestrator) isProcessing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.processing
}

// ConnectionByAccount returns the registered connection for an account, or
// nil when none matches.
func (o *Orchestrator) ConnectionByAccount(account string) *supplier.Connection {
	for _, conn := range o.connections {
		if conn.Account == account {
			return conn
		}
	}
	return nil
}

// Run executes the heartbeat loop for at most the given duration (zero means
// unbounded). Every exit path disconnects.
func (o *Orchestrator) Run(ctx context.Context, bound time.Duration) error {
	defer o.Disconnect()

	var deadline time.Time
	if bound > 0 {
		deadline = time.Now().Add(bound)
	}

	quotaAtStart := o.quotaMode(ctx)
	heartbeats := 0

	log.Printf("[poller] loop started (%d connections, quota integration %t)",
		len(o.connections), quotaAtStart)

	for {
		if o.isShutdown() || ctx.Err() != nil {
			return nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil
		}
		if o.quotaMode(ctx) != quotaAtStart {
			o.feed.Errorf("poller", "quota integration mode changed, stopping for restart")
			return ErrQuotaModeChanged
		}

		if !o.isEnabled() {
			o.sleepHeartbeat(ctx)
			continue
		}

		heartbeats++
		if heartbeats < o.cfg.HeartbeatsPerPoll {
			o.sleepHeartbeat(ctx)
			continue
		}
		heartbeats = 0

		if err := o.pollCycle(ctx); err != nil {
			return err
		}

		o.sleepHeartbeat(ctx)
	}
}

// quotaMode reads the effective quota-integration flag: the settings table
// overrides the configuration snapshot when an administrator has flipped it.
func (o *Orchestrator) quotaMode(ctx context.Context) bool {
	s, err := db.Settings.GetSetting(ctx, quotaModeSetting)
	if err != nil {
		return o.cfg.QuotaIntegration
	}
	v, err := strconv.ParseBool(s.Value)
	if err != nil {
		return o.cfg.QuotaIntegration
	}
	return v
}

func (o *Orchestrator) sleepHeartbeat(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(o.cfg.HeartbeatInterval):
	}
}

// pollCycle fetches and processes one job ticket per connection, then runs
// the completion sweeps. A connectivity fault aborts the whole cycle; a
// rate-limit skips the connection's poll and continues.
func (o *Orchestrator) pollCycle(ctx context.Context) error {
	for _, conn := range o.connections {
		if o.isShutdown() {
			return nil
		}

		if err := o.pollConnection(ctx, conn); err != nil {
			switch {
			case supplier.IsKind(err, supplier.KindRateLimited):
				log.Printf("[poller] %s: rate limited, skipping poll", conn.Account)
				o.feed.Warnf("poller", "%s: rate limited, skipping poll", conn.Account)
			case supplier.IsKind(err, supplier.KindConnectivity):
				o.feed.Errorf("poller", "%s: %v", conn.Account, err)
				return err
			default:
				log.Printf("[poller] %s: poll failed: %v", conn.Account, err)
				o.feed.Errorf("poller", "%s: poll failed: %v", conn.Account, err)
			}
		}
	}

	o.runSweeps(ctx)
	return nil
}

func (o *Orchestrator) pollConnection(ctx context.Context, conn *supplier.Connection) error {
	ticket, err := conn.GetJobTicket()
	if err != nil {
		return err
	}

	if conn.ClusterNode != "" {
		o.liveness.Observe(conn.ClusterNode)
	}

	for i := range ticket.Documents {
		if o.isShutdown() {
			return nil
		}
		if err := o.processDocument(ctx, conn, &ticket.Documents[i]); err != nil {
			return err
		}
	}

	return o.pullParked(ctx, conn)
}

// pullParked drains documents a sibling node has parked for this one. They
// were routed here by tag, so they skip routing and go straight to the
// local pipeline. An unreachable peer is no reason to disturb the cycle;
// the cached documents wait.
func (o *Orchestrator) pullParked(ctx context.Context, conn *supplier.Connection) error {
	if o.proxy == nil || conn.ProxyEndpoint == "" || conn.ClusterNode == "" {
		return nil
	}

	for {
		if o.isShutdown() {
			return nil
		}

		parked, err := o.proxy.Fetch(ctx, conn.ProxyEndpoint, conn.Account, conn.ClusterNode)
		if err != nil {
			log.Printf("[poller] %s: proxy pickup failed: %v", conn.Account, err)
			o.feed.Warnf("poller", "%s: proxy pickup failed: %v", conn.Account, err)
			return nil
		}
		if parked == nil {
			return nil
		}
		if err := o.processParked(ctx, conn, parked); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) processParked(ctx context.Context, conn *supplier.Connection, parked *cluster.ParkedDocument) error {
	o.setProcessing(true)
	defer o.setProcessing(false)

	doc := parked.Document
	log.Printf("[poller] document %s picked up from peer for node %s", doc.ID, conn.ClusterNode)
	return o.dispatchLocal(ctx, conn, &doc, parked.Payload)
}

// processDocument runs one document through route, download, allocation,
// chunking and dispatch. Only connectivity faults propagate; every other
// fault is resolved here per its kind.
func (o *Orchestrator) processDocument(ctx context.Context, conn *supplier.Connection, doc *supplier.Document) error {
	o.setProcessing(true)
	defer o.setProcessing(false)

	route, err := o.router.Route(conn, doc)
	if err != nil {
		// Configuration error, fatal to this connection's documents.
		o.feed.Errorf("cluster", "%s: %v", conn.Account, err)
		return err
	}

	switch route.Decision {
	case cluster.DecisionReject:
		o.report(conn, doc, supplier.StatusError, cluster.NoNodeTagReason)
		return nil
	case cluster.DecisionDefer:
		log.Printf("[poller] document %s deferred, node %s not reachable", doc.ID, route.Node)
		return nil
	}

	content, err := conn.DownloadDocument(doc)
	if err != nil {
		switch {
		case supplier.IsKind(err, supplier.KindContent):
			o.report(conn, doc, supplier.StatusCancelled, err.Error())
		case supplier.IsKind(err, supplier.KindConnectivity):
			return err
		default:
			// No report; the supplier re-offers the document next poll.
			log.Printf("[poller] document %s download failed: %v", doc.ID, err)
			o.feed.Warnf("poller", "document %s download failed: %v", doc.ID, err)
		}
		return nil
	}

	if route.Decision == cluster.DecisionProxy {
		o.cache.Put(conn.Account, route.Node, doc, content)
		log.Printf("[poller] document %s cached for node %s", doc.ID, route.Node)
		return nil
	}

	return o.dispatchLocal(ctx, conn, doc, content)
}

// dispatchLocal runs a downloaded document through allocation, chunking and
// dispatch on this node. A document that already has a log was dispatched on
// an earlier poll: the supplier re-offers it until a terminal report lands,
// and the completion sweeps retry that report, so it must not print again.
func (o *Orchestrator) dispatchLocal(ctx context.Context, conn *supplier.Connection, doc *supplier.Document, content []byte) error {
	if _, err := db.DocumentLogs.GetBySupplierID(ctx, doc.ID, conn.Account); err == nil {
		log.Printf("[poller] document %s already dispatched, awaiting completion", doc.ID)
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		log.Printf("[poller] document %s log lookup failed: %v", doc.ID, err)
		return nil
	}

	quotaActive := o.quotaMode(ctx)
	validator := &userValidator{
		ledger:      o.ledger,
		quota:       o.quota,
		quotaActive: quotaActive,
	}

	alloc := allocateDocument(ctx, doc, conn, validator)
	for _, reason := range alloc.Skipped {
		o.feed.Warnf("allocate", "document %s: %s", doc.ID, reason)
	}
	if alloc.Total == 0 {
		o.report(conn, doc, supplier.StatusError, "no billable copies")
		return nil
	}

	chunks, err := documentChunks(doc)
	if err != nil {
		o.report(conn, doc, supplier.StatusCancelled, err.Error())
		return nil
	}
	if len(chunks) == 0 {
		o.report(conn, doc, supplier.StatusCancelled, "selection selects no pages")
		return nil
	}

	if _, err := o.dispatcher.Dispatch(ctx, conn, doc, content, alloc, chunks); err != nil {
		switch {
		case supplier.IsKind(err, supplier.KindContent):
			o.report(conn, doc, supplier.StatusCancelled, err.Error())
		case supplier.IsKind(err, supplier.KindDispatch), supplier.IsKind(err, supplier.KindAccounting):
			o.report(conn, doc, supplier.StatusError, err.Error())
		case supplier.IsKind(err, supplier.KindConnectivity):
			return err
		default:
			// Ledger or persistence trouble: no report, retried next poll.
			log.Printf("[poller] document %s dispatch failed: %v", doc.ID, err)
			o.feed.Errorf("dispatch", "document %s: %v", doc.ID, err)
		}
		return nil
	}

	return nil
}

// report sends a terminal status directly over the connection. Status
// reports are never proxied. A transport failure leaves no local state to
// clean up at this stage; the supplier re-offers the document.
func (o *Orchestrator) report(conn *supplier.Connection, doc *supplier.Document, status supplier.DocumentStatus, comment string) {
	if err := conn.ReportDocumentStatus(doc.ID, status, comment); err != nil {
		log.Printf("[poller] report %s for document %s failed: %v", status, doc.ID, err)
		o.feed.Warnf("poller", "report %s for document %s failed: %v", status, doc.ID, err)
		return
	}
	log.Printf("[poller] document %s reported %s: %s", doc.ID, status, comment)
}

// runSweeps drives the completion monitor. A failing sweep is warned about
// and skipped; it never takes the poll cycle down.
func (o *Orchestrator) runSweeps(ctx context.Context) {
	quotaActive := o.quotaMode(ctx)

	for _, conn := range o.connections {
		if quotaActive {
			if err := o.monitor.AutoSweep(ctx, conn); err != nil {
				log.Printf("[poller] %s: auto sweep aborted: %v", conn.Account, err)
				o.feed.Warnf("monitor", "%s: auto sweep aborted: %v", conn.Account, err)
			}
		} else {
			// Without a quota backend nothing else confirms AUTO jobs.
			if err := o.monitor.DirectSweep(ctx, conn); err != nil {
				log.Printf("[poller] %s: direct sweep aborted: %v", conn.Account, err)
				o.feed.Warnf("monitor", "%s: direct sweep aborted: %v", conn.Account, err)
			}
		}
		if err := o.monitor.HoldSweep(ctx, conn); err != nil {
			log.Printf("[poller] %s: hold sweep aborted: %v", conn.Account, err)
			o.feed.Warnf("monitor", "%s: hold sweep aborted: %v", conn.Account, err)
		}
	}
}

// Disconnect waits for any in-flight document to finish, then closes every
// connection. Safe to call more than once.
func (o *Orchestrator) Disconnect() {
	o.mu.Lock()
	if o.disconnected {
		o.mu.Unlock()
		return
	}
	o.disconnected = true
	o.shutdown = true
	o.mu.Unlock()

	for o.isProcessing() {
		time.Sleep(disconnectPollInterval)
	}

	for _, conn := range o.connections {
		conn.Close()
	}
	log.Printf("[poller] disconnected %d connections", len(o.connections))
}
