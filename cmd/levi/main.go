package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"levi/internal/app"
	"levi/internal/config"
	"levi/internal/httpapi"
	"levi/internal/logger"
	"levi/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		inspect string
		addr    string
		debug   bool
	)
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/levi/config.yaml if not provided)")
	flag.StringVar(&inspect, "inspect", "", "Verify a local .txt document and browse the report in the terminal instead of serving HTTP")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.Parse()

	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	// The inspector owns the terminal, so only errors reach stderr.
	initLogger := func() error { return logger.Init(debug || cfg.Log.Debug) }
	if inspect != "" {
		initLogger = logger.InitQuiet
	}
	if err := initLogger(); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		logger.Error("failed to start: %v", err)
		os.Exit(1)
	}
	defer a.Close()

	if inspect != "" {
		err = runInspector(ctx, a, inspect)
	} else {
		err = serve(ctx, a)
	}
	if err != nil {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func runInspector(ctx context.Context, a *app.App, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	name := filepath.Base(path)
	up, err := a.Service.Upload(ctx, name, string(data))
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	report, err := a.Service.Verify(ctx, up.SessionID)
	if err != nil {
		return fmt.Errorf("verify %s: %w", name, err)
	}
	_, err = tea.NewProgram(tui.New(a.Service, name, report), tea.WithAltScreen()).Run()
	return err
}

func serve(ctx context.Context, a *app.App) error {
	if !logger.IsDebugEnabled() {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := &http.Server{
		Addr:              a.Config.Server.Addr,
		Handler:           httpapi.NewRouter(httpapi.NewHandler(a.Service, a.Config.Server.MaxUploadBytes)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ttl := a.Config.Server.SessionTTL(); ttl > 0 {
		go app.RunSessionExpiry(ctx, a.Service, ttl, time.Minute)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("Server has been shut down")
	return nil
}
