// Command averyd is the avery daemon: it serves the registry,
// executor and authentication services described in spec §4.10 over a
// single length-delimited RPC façade, and exposes /healthz and
// /metrics for operators.
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/avery/pkg/blobstore"
	"github.com/cuemby/avery/pkg/credentials"
	"github.com/cuemby/avery/pkg/executor"
	"github.com/cuemby/avery/pkg/health"
	"github.com/cuemby/avery/pkg/log"
	"github.com/cuemby/avery/pkg/metrics"
	"github.com/cuemby/avery/pkg/registry"
	"github.com/cuemby/avery/pkg/rpc"
	"github.com/cuemby/avery/pkg/transport"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "averyd",
	Short:   "averyd runs the registry, executor and RPC façade as a single daemon",
	Version: Version,
	RunE:    runDaemon,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("averyd version %s (%s)\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("socket", defaultSocketPath(), "Unix domain socket the RPC façade listens on")
	rootCmd.PersistentFlags().String("data-dir", "/var/lib/avery", "Directory for the registry database and sandbox scratch root")
	rootCmd.PersistentFlags().String("blob-base-url", "", "Base HTTPS URL attachments are uploaded to and fetched from (must end in /)")
	rootCmd.PersistentFlags().String("admin-addr", ":9090", "Address /healthz and /metrics are served on")
	rootCmd.PersistentFlags().String("config", "", "Optional YAML file supplying defaults for the flags above")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{Level: log.Level(level), JSONOutput: jsonOutput})
}

// defaultSocketPath mirrors spec §6's `/tmp/avery-<user>.sock` default,
// falling back to a fixed name if the current user can't be resolved.
func defaultSocketPath() string {
	u, err := user.Current()
	if err != nil {
		return "/tmp/avery.sock"
	}
	return fmt.Sprintf("/tmp/avery-%s.sock", u.Username)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}
	applyFileConfig(cmd.Flags(), cfg)
	initLogging()

	socketPath, _ := cmd.Flags().GetString("socket")
	dataDir, _ := cmd.Flags().GetString("data-dir")
	blobBaseURL, _ := cmd.Flags().GetString("blob-base-url")
	adminAddr, _ := cmd.Flags().GetString("admin-addr")

	logger := log.WithComponent("averyd")

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	scratchDir := dataDir + "/scratch"
	if err := os.MkdirAll(scratchDir, 0700); err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}

	store, err := registry.NewBoltStore(dataDir)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}
	defer store.Close()

	if blobBaseURL == "" {
		return fmt.Errorf("--blob-base-url is required")
	}
	blob, err := blobstore.NewHTTPSPrefixBucket(blobBaseURL)
	if err != nil {
		return fmt.Errorf("configure blob storage: %w", err)
	}

	creds, err := credentials.NewSQLStore(dataDir + "/credentials.db")
	if err != nil {
		return fmt.Errorf("open credential store: %w", err)
	}

	ex := &executor.Executor{
		Store:           store,
		Blob:            blob,
		ScratchDir:      scratchDir,
		HostOS:          hostOS(),
		TransportConfig: transport.DefaultConfig(),
	}

	server := rpc.NewServer(store, ex, creds, blob)

	if err := os.Remove(socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer ln.Close()

	checker := health.NewChecker(dataDir+"/avery-registry.db", scratchDir)
	mux := http.NewServeMux()
	mux.Handle("/healthz", checker.Handler())
	mux.Handle("/metrics", metrics.Handler())
	adminSrv := &http.Server{Addr: adminAddr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		logger.Info().Str("addr", adminAddr).Msg("admin endpoints listening")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Warn().Err(err).Msg("admin server stopped")
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("socket", socketPath).Msg("rpc façade listening")
		serveErr <- server.Serve(ctx, ln)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
		_ = adminSrv.Shutdown(context.Background())
		<-serveErr
		return nil
	case err := <-serveErr:
		return err
	}
}

func hostOS() string {
	if v := os.Getenv("AVERY_HOST_OS"); v != "" {
		return v
	}
	return runtime.GOOS
}
