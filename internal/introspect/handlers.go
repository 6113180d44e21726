package introspect

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/rclgo/internal/executor"
	"github.com/roach88/rclgo/internal/ir"
	"github.com/roach88/rclgo/internal/rcl"
)

// Health is the /healthz payload.
type Health struct {
	Status        string `json:"status"` // "healthy" or "unhealthy"
	ContextOK     bool   `json:"context_ok"`
	DomainID      int    `json:"domain_id"`
	ExecutorState string `json:"executor_state,omitempty"`
	Uptime        string `json:"uptime"`
	Version       string `json:"version"`
	GoVersion     string `json:"go_version"`
}

// NodeInfo is one entry of /graph/nodes.
type NodeInfo struct {
	Name          string             `json:"name"`
	Namespace     string             `json:"namespace"`
	Publishers    []rcl.NameAndTypes `json:"publishers"`
	Subscriptions []rcl.NameAndTypes `json:"subscriptions"`
	Services      []rcl.NameAndTypes `json:"services"`
	Clients       []rcl.NameAndTypes `json:"clients"`
}

// TopicInfo is one entry of /graph/topics.
type TopicInfo struct {
	Name        string   `json:"name"`
	Types       []string `json:"types"`
	Publishers  int      `json:"publishers"`
	Subscribers int      `json:"subscribers"`
}

// TopicEndpoints is the /graph/topics/{topic} payload.
type TopicEndpoints struct {
	Name          string                  `json:"name"`
	Publishers    []rcl.TopicEndpointInfo `json:"publishers"`
	Subscriptions []rcl.TopicEndpointInfo `json:"subscriptions"`
}

// handleHealth reports whether the context is running and the executor has
// not terminated. Unhealthy systems answer 503 with the same payload.
// GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:    "healthy",
		ContextOK: s.rctx.OK(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Version:   ir.EngineVersion,
		GoVersion: runtime.Version(),
	}
	h.DomainID, _ = s.rctx.DomainID()
	if s.exec != nil {
		h.ExecutorState = s.exec.State().String()
	}
	if !h.ContextOK || (s.exec != nil && s.exec.State() == executor.Terminated) {
		h.Status = "unhealthy"
		respondJSON(w, r, http.StatusServiceUnavailable, h, nil)
		return
	}
	respondOK(w, r, h)
}

// GET /graph/nodes
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	graph := s.rctx.Graph()
	names := graph.NodeNames()
	nodes := make([]NodeInfo, 0, len(names))
	for _, n := range names {
		info := NodeInfo{Name: n.Name, Namespace: n.Namespace}
		var err error
		if info.Publishers, err = graph.PublisherNamesAndTypesByNode(n.Name, n.Namespace); err != nil {
			// The node went away between the two queries.
			continue
		}
		info.Subscriptions, _ = graph.SubscriberNamesAndTypesByNode(n.Name, n.Namespace)
		info.Services, _ = graph.ServiceNamesAndTypesByNode(n.Name, n.Namespace)
		info.Clients, _ = graph.ClientNamesAndTypesByNode(n.Name, n.Namespace)
		nodes = append(nodes, info)
	}
	respondOK(w, r, nodes)
}

// GET /graph/topics
func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	graph := s.rctx.Graph()
	topics := graph.TopicNamesAndTypes()
	out := make([]TopicInfo, 0, len(topics))
	for _, t := range topics {
		out = append(out, TopicInfo{
			Name:        t.Name,
			Types:       t.Types,
			Publishers:  graph.CountPublishers(t.Name),
			Subscribers: graph.CountSubscribers(t.Name),
		})
	}
	respondOK(w, r, out)
}

// handleTopic lists the endpoints of one fully qualified topic; the path
// after /graph/topics is the topic name.
// GET /graph/topics/{topic...}
func (s *Server) handleTopic(w http.ResponseWriter, r *http.Request) {
	name := "/" + chi.URLParam(r, "*")
	graph := s.rctx.Graph()
	ep := TopicEndpoints{
		Name:          name,
		Publishers:    graph.PublishersInfoByTopic(name),
		Subscriptions: graph.SubscriptionsInfoByTopic(name),
	}
	if len(ep.Publishers) == 0 && len(ep.Subscriptions) == 0 {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "no endpoints on topic "+name)
		return
	}
	respondOK(w, r, ep)
}

// GET /graph/services
func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	respondOK(w, r, s.rctx.Graph().ServiceNamesAndTypes())
}

// GET /executor
func (s *Server) handleExecutor(w http.ResponseWriter, r *http.Request) {
	if s.exec == nil {
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeUnavailable, "no executor attached")
		return
	}
	respondOK(w, r, s.exec.Stats())
}
