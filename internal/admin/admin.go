// Package admin implements the HTTP admin API: CRUD over the broker's
// groups and topics, health and metrics endpoints, and a live admin-event
// feed. It is external to the core per the wire protocol's scope — every
// handler reaches the broker only through broker.GroupRegistry and
// connreg.Registry's exported methods, never through the dispatcher or
// connection internals.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/0xhappyboy/luminmq/internal/broker"
	"github.com/0xhappyboy/luminmq/internal/connreg"
	"github.com/0xhappyboy/luminmq/pkg/adminevents"
)

// Server is the admin HTTP listener.
type Server struct {
	groups *broker.GroupRegistry
	conns  *connreg.Registry
	events *adminevents.Hub

	jwt *jwtVerifier

	logger zerolog.Logger
	http   *http.Server
}

// New builds an admin Server bound to addr. jwtSecret may be empty, in
// which case every mutating route responds 503 rather than silently
// allowing unauthenticated writes.
func New(addr string, groups *broker.GroupRegistry, conns *connreg.Registry, jwtSecret string, logger zerolog.Logger) *Server {
	s := &Server{
		groups: groups,
		conns:  conns,
		events: adminevents.NewHub(logger),
		logger: logger,
	}
	if jwtSecret != "" {
		s.jwt = newJWTVerifier(jwtSecret)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/groups", s.handleGroups)
	mux.HandleFunc("/groups/", s.handleGroupSubpaths)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/events", s.events.ServeWS)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start runs the admin HTTP server and the admin-event hub until
// shutdown. It always returns a non-nil error from http.Server.Serve;
// http.ErrServerClosed indicates a clean Shutdown call.
func (s *Server) Start() error {
	go s.events.Run()
	s.logger.Info().Str("addr", s.http.Addr).Msg("admin API listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and the event hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.Shutdown()
	return s.http.Shutdown(ctx)
}

type createGroupRequest struct {
	ID   string `json:"id"`
	Mode string `json:"mode"`
}

type groupView struct {
	ID     string   `json:"id"`
	Mode   string   `json:"mode"`
	Topics []string `json:"topics"`
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listGroups(w, r)
	case http.MethodPost:
		s.requireAuth(s.createGroup)(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.groups.Groups()
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView{ID: g.ID, Mode: g.Mode.String(), Topics: g.Topics()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req createGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeJSONError(w, http.StatusBadRequest, "id is required")
		return
	}
	mode, err := broker.ParseGroupMode(req.Mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	g := s.groups.Create(req.ID, mode)
	s.events.Publish(adminevents.Event{Kind: "group_created", GroupID: g.ID})
	writeJSON(w, http.StatusCreated, groupView{ID: g.ID, Mode: g.Mode.String(), Topics: g.Topics()})
}

type createTopicRequest struct {
	Topic string `json:"topic"`
	Mode  string `json:"mode"`
}

type topicCountView struct {
	Count int `json:"count"`
}

// handleGroupSubpaths routes /groups/{id}/topics and
// /groups/{id}/topics/{topic}/count without pulling in a routing
// dependency the rest of the stack doesn't otherwise need.
func (s *Server) handleGroupSubpaths(w http.ResponseWriter, r *http.Request) {
	groupID, rest, ok := splitFirstSegment(r.URL.Path, "/groups/")
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	switch {
	case rest == "/topics" || rest == "/topics/":
		s.handleTopics(w, r, groupID)
	case hasTopicCountSuffix(rest):
		topic := topicFromCountPath(rest)
		s.handleTopicCount(w, r, groupID, topic)
	default:
		writeJSONError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request, groupID string) {
	switch r.Method {
	case http.MethodGet:
		g, ok := s.groups.Get(groupID)
		if !ok {
			writeJSONError(w, http.StatusNotFound, "group not found")
			return
		}
		writeJSON(w, http.StatusOK, g.Topics())
	case http.MethodPost:
		s.requireAuth(func(w http.ResponseWriter, r *http.Request) {
			s.createTopic(w, r, groupID)
		})(w, r)
	default:
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request, groupID string) {
	if !s.groups.Contains(groupID) {
		writeJSONError(w, http.StatusNotFound, "group not found")
		return
	}
	var req createTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Topic == "" {
		writeJSONError(w, http.StatusBadRequest, "topic is required")
		return
	}
	mode, err := broker.ParseChannelMode(req.Mode)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.groups.InsertChannel(groupID, req.Topic, mode)
	s.events.Publish(adminevents.Event{Kind: "topic_created", GroupID: groupID, Topic: req.Topic})
	writeJSON(w, http.StatusCreated, map[string]string{"group": groupID, "topic": req.Topic, "mode": mode.String()})
}

func (s *Server) handleTopicCount(w http.ResponseWriter, r *http.Request, groupID, topic string) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.groups.ContainsTopic(groupID, topic) {
		writeJSONError(w, http.StatusNotFound, "topic not found")
		return
	}
	writeJSON(w, http.StatusOK, topicCountView{Count: s.groups.MessageCount(groupID, topic)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"groups":      s.groups.GroupCount(),
		"connections": s.conns.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// splitFirstSegment strips prefix from path and returns the first
// remaining path segment plus whatever follows it.
func splitFirstSegment(path, prefix string) (segment, rest string, ok bool) {
	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return "", "", false
	}
	trimmed := path[len(prefix):]
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '/' {
			return trimmed[:i], trimmed[i:], true
		}
	}
	return trimmed, "", true
}

func hasTopicCountSuffix(rest string) bool {
	const p, s := "/topics/", "/count"
	return len(rest) > len(p)+len(s) && rest[:len(p)] == p && rest[len(rest)-len(s):] == s
}

func topicFromCountPath(rest string) string {
	const p, s := "/topics/", "/count"
	return rest[len(p) : len(rest)-len(s)]
}
