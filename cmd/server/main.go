package main

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/appvision-bridge/bridge/internal/api"
	"github.com/appvision-bridge/bridge/internal/config"
	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/lifecycle"
	"github.com/appvision-bridge/bridge/internal/ops"
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
	configPath := filepath.Join(exeDir, "AppVisionBridge.exe.config")
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Shared session record and peer gateway
	store := storage.NewFileStore(cfg.Session.RecordPath)
	gw := gateway.NewClient()

	// Keep-alive and idle auto-logout guard the shared record
	keeper := session.NewKeeper(store, gw,
		time.Duration(cfg.Session.KeepAliveSeconds)*time.Second,
		time.Duration(cfg.Session.IdleTimeoutMinutes)*time.Minute)
	keeper.Start()
	defer keeper.Stop()

	// Invocations reset the idle countdown
	invoker := ops.NewInvoker(gw, store)
	invoker.SetActivityHook(keeper.Touch)

	ctrl := lifecycle.NewController(gw, store, lifecycle.Credentials{
		Username: cfg.Peer.Username,
		Password: cfg.Peer.Password,
	})

	e := echo.New()
	e.HideBanner = true
	api.SetupMiddleware(e)

	// Configure middleware
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

	e.Use(middleware.BodyLimit(cfg.Server.BodyLimit))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 0 || (len(origins) == 1 && origins[0] == "") {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	handlers := api.NewHandlers(&api.Dependencies{
		Gateway:     gw,
		Store:       store,
		Invoker:     invoker,
		Controller:  ctrl,
		DefaultPeer: cfg.PeerAddress(),
		Version:     Version,
	})
	// A fresh login starts its idle countdown from now, not from the last
	// tool call.
	handlers.Session.SetActivityHook(keeper.Touch)
	api.RegisterRoutes(e, handlers)

	// Configure server with settings from XML config
	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           AppVision Bridge - Tool Server                  ║\n")
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

	e.Logger.Fatal(e.StartServer(s))
}
