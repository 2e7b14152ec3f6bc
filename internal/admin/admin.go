package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/rsensor/internal/observability"
	"github.com/danmuck/rsensor/internal/protocol"
	"github.com/danmuck/rsensor/internal/server"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const DefaultAddr = "127.0.0.1:42080"

type Config struct {
	Enabled     bool
	Addr        string
	Name        string
	CORSOrigins []string
}

func DefaultConfig() Config {
	return Config{
		Enabled: true,
		Addr:    DefaultAddr,
		Name:    "rsensor",
	}
}

// Backend is the slice of *server.Server the admin surface drives.
type Backend interface {
	IsRunning() bool
	Peers() []server.PeerInfo
	Sensors() map[string]protocol.Value
	SensorUpdate(values map[string]protocol.Value) error
	SendBroadcast(name string) error
	Camera(format string, image []byte) error
	Watch(ctx context.Context) <-chan protocol.Message
}

var _ Backend = (*server.Server)(nil)

// Admin serves health, metrics, and peer/sensor inspection over HTTP.
type Admin struct {
	cfg      Config
	backend  Backend
	router   *gin.Engine
	appeared time.Time
}

func New(cfg Config, backend Backend) *Admin {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Name == "" {
		cfg.Name = "rsensor"
	}
	observability.RegisterMetrics()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CORSOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		cfg:      cfg,
		backend:  backend,
		router:   r,
		appeared: time.Now(),
	}
	a.registerRoutes()
	return a
}

func (a *Admin) Router() *gin.Engine {
	return a.router
}

// Serve runs the HTTP surface until ctx is done, then shuts down gracefully.
func (a *Admin) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr)
	if err != nil {
		return err
	}
	return a.ServeListener(ctx, ln)
}

func (a *Admin) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("admin.Serve listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("admin.Serve shutdown")
		return err
	}
	log.Info().Msg("admin.Serve stopped")
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:8601"}
	}
	return origins
}
