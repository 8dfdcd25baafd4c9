package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
	"github.com/a3tai/mcp-bulletin/internal/config"
	"github.com/a3tai/mcp-bulletin/internal/generate"
	"github.com/a3tai/mcp-bulletin/internal/layout"
	"github.com/a3tai/mcp-bulletin/internal/mcp"
	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
	"github.com/a3tai/mcp-bulletin/internal/storage"
	"github.com/a3tai/mcp-bulletin/internal/store"
)

var (
	version   = "dev"     // This will be set by build flags
	buildTime = "unknown" // This will be set by build flags
	gitCommit = "unknown" // This will be set by build flags
)

// setupLogging configures logging based on the server mode
func setupLogging(cfg *config.Config) {
	if cfg.IsStdioMode() {
		// stdout carries the MCP protocol, so logs go to stderr or nowhere
		log.SetOutput(os.Stderr)
		if !cfg.IsDebug() {
			log.SetOutput(io.Discard)
		}
	} else {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}
}

// buildService wires the stores, the PDF backends and the bulletin service.
// The returned function releases the database connection, if any.
func buildService(cfg *config.Config) (*bulletin.Service, func() error, error) {
	closeStore := func() error { return nil }

	var db bulletin.Store
	if cfg.UsesDatabase() {
		pg, err := store.OpenPostgres(cfg.DatabaseURL, cfg.IsDebug())
		if err != nil {
			return nil, nil, err
		}
		db = pg
		closeStore = pg.Close
	} else {
		db = store.NewMemory()
	}

	blobs, err := storage.NewOS(cfg.StorageDir, storage.WithMaxSize(cfg.MaxFileSize))
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}

	factory := wrapper.NewPDFLibraryFactoryWithConfig(wrapper.FactoryConfig{
		PreferredLibrary: wrapper.LibraryType(cfg.PDFBackend),
		MaxFileSize:      cfg.MaxFileSize,
		DebugMode:        cfg.IsDebug(),
	})

	extractor, err := layout.NewExtractorForBackend(factory, wrapper.LibraryType(cfg.PDFBackend), cfg.LayoutOptions())
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("failed to create text extractor: %w", err)
	}
	writer, err := factory.CreateWriter(wrapper.LibraryAuto)
	if err != nil {
		_ = closeStore()
		return nil, nil, fmt.Errorf("failed to create PDF writer: %w", err)
	}

	font, color := cfg.FontStyle()
	svc := bulletin.NewService(
		db,
		blobs,
		extractor,
		generate.NewGenerator(writer, blobs, generate.WithFont(font), generate.WithColor(color)),
		bulletin.NewMatcher(db, cfg.MatchThreshold),
		bulletin.Options{FontSize: cfg.FontSize, MaxFileSize: cfg.MaxFileSize},
	)
	return svc, closeStore, nil
}

// runServerMode handles server mode execution with signal handling
func runServerMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signalCh)

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Run(ctx)
	}()

	select {
	case sig := <-signalCh:
		log.Printf("Received signal: %s", sig)
		log.Println("Initiating graceful shutdown...")
		cancel()

		if err := <-serverErrCh; err != nil {
			return fmt.Errorf("server shutdown with error: %w", err)
		}

	case err := <-serverErrCh:
		if err != nil {
			return err
		}
	}

	log.Println("Server stopped successfully")
	return nil
}

// runStdioMode handles stdio mode execution. The parent process controls
// our lifecycle; closing stdin or sending SIGTERM ends the session.
func runStdioMode(ctx context.Context, cancel context.CancelFunc, server *mcp.Server) error {
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	go func() {
		select {
		case <-signalCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	return server.Run(ctx)
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			printVersion()
			return
		}
	}

	cfg, err := config.LoadFromFlags()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	setupLogging(cfg)

	if version != "dev" {
		cfg.Version = version
	}

	if cfg.IsDebug() {
		log.Printf("Starting with configuration: %s", cfg.String())
	}

	svc, closeStore, err := buildService(cfg)
	if err != nil {
		log.Fatalf("Failed to create bulletin service: %v", err)
	}

	server, err := mcp.NewServer(cfg, svc)
	if err != nil {
		_ = closeStore()
		log.Fatalf("Failed to create MCP server: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	if cfg.IsServerMode() {
		err = runServerMode(ctx, cancel, server)
	} else {
		err = runStdioMode(ctx, cancel, server)
	}
	cancel()

	if closeErr := closeStore(); closeErr != nil {
		log.Printf("Failed to close store: %v", closeErr)
	}
	if err != nil {
		log.Printf("Server error: %v", err)
		os.Exit(1)
	}
}

// printVersion prints version information
func printVersion() {
	fmt.Printf("MCP Bulletin Server\n")
	fmt.Printf("Version: %s\n", version)
	fmt.Printf("Build Time: %s\n", buildTime)
	fmt.Printf("Git Commit: %s\n", gitCommit)
	fmt.Printf("Built with: %s\n", runtime.Version())
}
