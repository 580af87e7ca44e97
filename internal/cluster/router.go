// Package cluster decides where each incoming document is processed when
// several deployments share one supplier account space.
package cluster

import (
	"errors"
	"strings"

	"github.com/printworks/relay/internal/supplier"
)

// ErrMissingNodeID means a clustered connection was configured without a
// node identity. This is a configuration error, fatal to the connection.
var ErrMissingNodeID = errors.New("clustered connection has no node id")

// NoNodeTagReason is the fixed reason reported to the supplier when a
// document in a cluster carries no node tag. Terminal, never retried.
const NoNodeTagReason = "document is not tagged with a cluster node"

type Decision int

const (
	// DecisionLocal processes the document on this deployment.
	DecisionLocal Decision = iota
	// DecisionProxy caches the document for retrieval by the tagged peer.
	DecisionProxy
	// DecisionDefer leaves the document untouched for a later cycle.
	DecisionDefer
	// DecisionReject reports ERROR with NoNodeTagReason and drops the
	// document permanently.
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionLocal:
		return "local"
	case DecisionProxy:
		return "proxy"
	case DecisionDefer:
		return "defer"
	case DecisionReject:
		return "reject"
	}
	return "unknown"
}

type RouteResult struct {
	Decision Decision
	Node     string
}

type Router struct {
	liveness *LivenessTable
}

func NewRouter(liveness *LivenessTable) *Router {
	return &Router{liveness: liveness}
}

// Route applies the cluster routing rules for one document.
func (r *Router) Route(conn *supplier.Connection, doc *supplier.Document) (RouteResult, error) {
	if !conn.InCluster() {
		return RouteResult{Decision: DecisionLocal}, nil
	}

	if strings.TrimSpace(conn.ClusterNode) == "" {
		return RouteResult{}, ErrMissingNodeID
	}

	node := NodeTag(doc.Comment)
	if node == "" {
		return RouteResult{Decision: DecisionReject}, nil
	}

	if node == conn.ClusterNode {
		return RouteResult{Decision: DecisionLocal, Node: node}, nil
	}

	if conn.ProxyEndpoint != "" && r.liveness.Alive(node) {
		return RouteResult{Decision: DecisionProxy, Node: node}, nil
	}

	return RouteResult{Decision: DecisionDefer, Node: node}, nil
}

// NodeTag extracts the cluster node tag from a document comment. The tag is
// a whitespace-separated "node:<id>" token.
func NodeTag(comment string) string {
	for _, field := range strings.Fields(comment) {
		if strings.HasPrefix(field, "node:") {
			return strings.TrimPrefix(field, "node:")
		}
	}
	return ""
}
