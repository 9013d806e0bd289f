// Package adminapi exposes a small, read-mostly HTTP surface for
// operators: health, per-layer stats, audit queries, and a backup
// trigger. It is deliberately NOT the tool-call protocol memory clients
// use to store/search/retrieve — that surface is internal/router +
// internal/tenant, invoked in-process or via a separate transport.
package adminapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/cordlesssteve/layered-memory/internal/logging"
	"github.com/cordlesssteve/layered-memory/internal/memtypes"
	"github.com/cordlesssteve/layered-memory/internal/router"
	"github.com/cordlesssteve/layered-memory/internal/tenant"
)

// Config tunes the admin HTTP server.
type Config struct {
	Host         string
	Port         int
	AllowOrigins []string // empty means no CORS middleware at all
}

// Server is the admin HTTP surface.
type Server struct {
	cfg        Config
	router     *gin.Engine
	engine     *router.Router
	overlay    *tenant.Overlay
	httpServer *http.Server
	log        *logging.Logger
}

// NewServer builds the admin server around a Router and its tenant
// Overlay (the overlay is optional; pass nil to disable audit queries).
func NewServer(cfg Config, r *router.Router, overlay *tenant.Overlay) *Server {
	log := logging.GetLogger("adminapi")

	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())

	if len(cfg.AllowOrigins) > 0 {
		g.Use(cors.New(cors.Config{
			AllowOrigins: cfg.AllowOrigins,
			AllowMethods: []string{"GET", "POST"},
			AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
			MaxAge:       12 * time.Hour,
		}))
	}

	s := &Server{cfg: cfg, router: g, engine: r, overlay: overlay, log: log}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	admin := s.router.Group("/admin/v1")
	{
		admin.GET("/health", s.health)
		admin.GET("/stats", s.stats)
		admin.GET("/audit", s.audit)
		admin.POST("/backup", s.backup)
	}
}

func (s *Server) health(c *gin.Context) {
	success(c, "ok", gin.H{"status": "healthy"})
}

func (s *Server) stats(c *gin.Context) {
	layers := s.engine.Layers()
	out := make(map[string]any, len(layers))
	for name, l := range layers {
		st := l.Stats()
		policy := l.Policy()
		out[string(name)] = gin.H{
			"item_count": st.ItemCount,
			"byte_size":  st.ByteSize,
			"max_items":  policy.MaxItems,
			"max_bytes":  policy.MaxBytes,
		}
	}
	success(c, "layer stats", out)
}

func (s *Server) audit(c *gin.Context) {
	if s.overlay == nil {
		badRequest(c, "audit log not configured")
		return
	}
	tenantID := c.Query("tenant_id")
	if tenantID == "" {
		badRequest(c, "tenant_id is required")
		return
	}
	events := s.overlay.Audit().ForTenant(tenantID)
	success(c, "audit events", events)
}

// backupRequest optionally restricts the trigger to one layer.
type backupRequest struct {
	Layer string `json:"layer"`
}

func (s *Server) backup(c *gin.Context) {
	var req backupRequest
	_ = c.ShouldBindJSON(&req) // empty body is valid: backup every layer

	layers := s.engine.Layers()
	targets := map[memtypes.Layer]bool{}
	if req.Layer != "" {
		targets[memtypes.Layer(req.Layer)] = true
	} else {
		for name := range layers {
			targets[name] = true
		}
	}

	results := make(map[string]any, len(targets))
	for name := range targets {
		l, ok := layers[name]
		if !ok {
			results[string(name)] = gin.H{"error": "unknown layer"}
			continue
		}
		id, err := l.Backup()
		if err != nil {
			results[string(name)] = gin.H{"error": err.Error()}
			continue
		}
		results[string(name)] = gin.H{"backup_id": id}
	}
	success(c, "backup triggered", results)
}

// Start runs the server until ctx is cancelled, then shuts it down
// gracefully within shutdownTimeout.
func (s *Server) Start(ctx context.Context, shutdownTimeout time.Duration) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{Addr: addr, Handler: s.router}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting admin API", "address", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("admin API server error: %w", err)
	}
}

// Router exposes the underlying gin.Engine for tests.
func (s *Server) Router() *gin.Engine { return s.router }
