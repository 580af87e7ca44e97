package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/printworks/relay/internal/cluster"
	"github.com/printworks/relay/internal/db"
	"github.com/printworks/relay/internal/feed"
	"github.com/printworks/relay/internal/ledger"
)

// PollerControl is the slice of the orchestrator the admin API needs.
type PollerControl interface {
	SetEnabled(enabled bool)
}

type NodeStatus struct {
	Node          string    `json:"node"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Alive         bool      `json:"alive"`
}

type AdminHandler struct {
	ledger   *ledger.Service
	liveness *cluster.LivenessTable
	cache    *cluster.ProxyCache
	poller   PollerControl
	hub      *feed.Hub
}

func NewAdminHandler(ledgerSvc *ledger.Service, liveness *cluster.LivenessTable, cache *cluster.ProxyCache, poller PollerControl, hub *feed.Hub) *AdminHandler {
	return &AdminHandler{
		ledger:   ledgerSvc,
		liveness: liveness,
		cache:    cache,
		poller:   poller,
		hub:      hub,
	}
}

// SuspendMaintenance closes the ledger gate: new writing sections block
// until the gate is resumed; the call returns once in-flight commits drain.
func (h *AdminHandler) SuspendMaintenance(c *gin.Context) {
	h.ledger.Gate().Suspend()
	c.JSON(http.StatusOK, gin.H{"suspended": true})
}

func (h *AdminHandler) ResumeMaintenance(c *gin.Context) {
	h.ledger.Gate().Resume()
	c.JSON(http.StatusOK, gin.H{"suspended": false})
}

func (h *AdminHandler) MaintenanceStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"suspended": h.ledger.Gate().Suspended()})
}

func (h *AdminHandler) ClusterNodes(c *gin.Context) {
	snapshot := h.liveness.Snapshot()
	nodes := make([]NodeStatus, 0, len(snapshot))
	for node, last := range snapshot {
		nodes = append(nodes, NodeStatus{
			Node:          node,
			LastHeartbeat: last,
			Alive:         h.liveness.Alive(node),
		})
	}
	c.JSON(http.StatusOK, nodes)
}

func (h *AdminHandler) EnablePoller(c *gin.Context) {
	h.poller.SetEnabled(true)
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

func (h *AdminHandler) DisablePoller(c *gin.Context) {
	h.poller.SetEnabled(false)
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

type QuotaModeRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetQuotaMode flips the quota-integration setting. The running loop detects
// the change at its next tick and hard-stops for a restart with fresh
// settings.
func (h *AdminHandler) SetQuotaMode(c *gin.Context) {
	var req QuotaModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: err.Error(),
		})
		return
	}

	if err := db.Settings.SetSetting(c.Request.Context(), "quota_integration", strconv.FormatBool(*req.Enabled), false); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update quota mode",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"enabled": *req.Enabled})
}

// EventFeed upgrades the request to a websocket and streams warning and
// error events until the admin console disconnects.
func (h *AdminHandler) EventFeed(c *gin.Context) {
	if err := h.hub.ServeWS(c.Writer, c.Request); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "upgrade_failed",
			Message: err.Error(),
		})
	}
}

// PickupDocument hands one cached document to a sibling cluster node. The
// request itself counts as a heartbeat from that node.
func (h *AdminHandler) PickupDocument(c *gin.Context) {
	account := c.Query("account")
	node := c.Query("node")
	if account == "" || node == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "account and node query parameters are required",
		})
		return
	}

	h.liveness.Observe(node)

	doc := h.cache.Take(account, node)
	if doc == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, cluster.ParkedDocument{
		Document: doc.Document,
		Payload:  doc.Payload,
	})
}
