// Package adminhttp exposes the node's read-only HTTP surface
// (SPEC_FULL.md §10): a health check, a JSON mirror of the `describe`
// action for tooling that would rather not speak the line protocol,
// Prometheus metrics, and the WebSocket upgrade endpoint.
package adminhttp

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vitalybin/frappy/pkg/secop/dispatch"
	"github.com/vitalybin/frappy/pkg/secop/metrics"
	"github.com/vitalybin/frappy/pkg/secop/wire"
)

// wsHandler is satisfied by *ws.Bridge; kept as an interface here so
// adminhttp does not import the ws package directly and create a
// dependency cycle risk between the two transport packages.
type wsHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Server is the node's admin HTTP surface, built on gin the way the
// teacher's HTTP integration layer wires Prometheus and health
// middleware around a gin.Engine.
type Server struct {
	engine *gin.Engine
	disp   *dispatch.Dispatcher
}

// New builds an admin Server. ws may be nil to omit the /ws upgrade
// route (e.g. a node that only serves raw TCP).
func New(disp *dispatch.Dispatcher, ws wsHandler) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{engine: engine, disp: disp}
	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/describe", s.handleDescribe)
	engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	if ws != nil {
		engine.GET("/ws", gin.WrapH(ws))
	}
	return s
}

// Handler returns the admin surface as an http.Handler for use with
// http.Server or net/http/httptest.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "modules": len(s.disp.Modules())})
}

// handleDescribe mirrors the wire `describe` action as JSON, reusing
// HandleFrame directly so the two surfaces never drift apart.
func (s *Server) handleDescribe(c *gin.Context) {
	reply := s.disp.HandleFrame(c.Request.Context(), dispatch.NewSession(), wire.Frame{Action: "describe"})
	if len(reply) == 0 {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "no describe reply"})
		return
	}
	var payload any
	if err := json.Unmarshal(reply[0].Payload, &payload); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payload)
}
