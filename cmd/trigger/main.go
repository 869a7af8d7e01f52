package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/appvision-bridge/bridge/internal/api"
	"github.com/appvision-bridge/bridge/internal/config"
	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/lifecycle"
	"github.com/appvision-bridge/bridge/internal/poller"
	"github.com/appvision-bridge/bridge/internal/session"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		fmt.Printf("Failed to get executable path: %v\n", err)
		os.Exit(1)
	}
	exeDir := filepath.Dir(exePath)

	// Load XML configuration
	configPath := filepath.Join(exeDir, "AppVisionTrigger.exe.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	filters, err := config.LoadFilters(cfg.Polling.FiltersFile)
	if err != nil {
		fmt.Printf("Failed to load notification filters: %v\n", err)
		os.Exit(1)
	}

	store := storage.NewFileStore(cfg.Session.RecordPath)
	gw := gateway.NewClient()

	ctrl := lifecycle.NewController(gw, store, lifecycle.Credentials{
		Username: cfg.Peer.Username,
		Password: cfg.Peer.Password,
	})
	ctrl.SetFilters(filters.Types)

	// Fan-out hub for websocket subscribers
	hub := api.NewHub()

	p := poller.New(gw, store, ctrl,
		time.Duration(cfg.Polling.IntervalMs)*time.Millisecond,
		cfg.Polling.BatchSize,
		hub.Broadcast)

	// The controller feeds connection-status events into the poller's
	// pending channels and stops retrying once the poller shuts down.
	ctrl.SetStatusSink(p.PushStatus)
	ctrl.SetActiveCheck(p.Active)

	keeper := session.NewKeeper(store, gw,
		time.Duration(cfg.Session.KeepAliveSeconds)*time.Second,
		time.Duration(cfg.Session.IdleTimeoutMinutes)*time.Minute)

	// Successful poll fetches count as activity, so a healthy feed never
	// trips the idle auto-logout.
	p.SetActivityHook(keeper.Touch)

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			return c.Request().URL.Path == "/health"
		},
	}))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize:         1024 * 4,
		DisablePrintStack: false,
	}))

	e.GET("/health", func(c echo.Context) error {
		_, hasSession := store.Load()
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":      "ok",
			"version":     Version,
			"session":     hasSession,
			"polling":     p.Active(),
			"subscribers": hub.ClientCount(),
		})
	})
	api.RegisterFeedRoutes(e, api.NewFeedHandler(p), hub)

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           AppVision Bridge - Trigger Daemon               ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Peer:      %-46s║\n", cfg.PeerAddress())
	fmt.Printf("║  Session:   %-46s║\n", cfg.Session.RecordPath)
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initial connection blocks until the peer accepts a full login; only
	// then does polling start.
	go func() {
		if _, err := ctrl.Reconnect(ctx, cfg.PeerAddress()); err != nil {
			fmt.Printf("[Trigger] Initial connection aborted: %v\n", err)
			return
		}
		keeper.Start()
		p.Run(ctx)
	}()

	go func() {
		if err := e.Start(cfg.GetServerAddr()); err != nil && err != http.ErrServerClosed {
			fmt.Printf("[Trigger] HTTP server stopped: %v\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	fmt.Printf("[Trigger] Shutdown signal received\n")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	p.Shutdown(shutdownCtx)
	cancel()
	keeper.Stop()
	hub.Close()
	if err := e.Shutdown(shutdownCtx); err != nil {
		fmt.Printf("[Trigger] HTTP shutdown error: %v\n", err)
	}
	fmt.Printf("[Trigger] Stopped\n")
}
