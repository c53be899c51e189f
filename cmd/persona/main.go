package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"persona.dev/recruiter-persona/internal/api"
	"persona.dev/recruiter-persona/internal/config"
	"persona.dev/recruiter-persona/internal/logging"
)

var (
	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error

	forceIngest bool
	searchLimit int
)

var rootCmd = &cobra.Command{
	Use:   "persona",
	Short: "Recruiter persona chat service",
	Long: `Answers recruiter questions in the voice of one candidate, using retrieval over
the candidate's profile and a hosted language model.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, closeLog = logging.Setup(cfg.LogLevel, cfg.LogFile)
		slog.SetDefault(logger)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if closeLog != nil {
			_ = closeLog()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Ingest the profile if needed and serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build the knowledge index from the profile and exit",
	Long: `Chunks the profile, embeds every chunk and stores the result in the database.
Ingestion is skipped when the stored index already matches the profile and the
embedding model; --force re-embeds regardless.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.bootstrap(cmd.Context(), forceIngest)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Rank knowledge chunks against a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()
		if err := a.bootstrap(cmd.Context(), false); err != nil {
			return err
		}

		query := args[0]
		for _, extra := range args[1:] {
			query += " " + extra
		}
		hits := a.chat.Search(cmd.Context(), query, searchLimit)
		out := cmd.OutOrStdout()
		if len(hits) == 0 {
			fmt.Fprintln(out, "no results")
			return nil
		}
		for i, h := range hits {
			fmt.Fprintf(out, "%d. [%.3f] %s\n   %s\n", i+1, h.Score, h.ID, h.Text)
		}
		return nil
	},
}

func init() {
	ingestCmd.Flags().BoolVar(&forceIngest, "force", false, "re-embed even when the stored index is current")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 5, "maximum number of results")
	rootCmd.AddCommand(serveCmd, ingestCmd, searchCmd)
}

func runServe(ctx context.Context) error {
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.bootstrap(ctx, false); err != nil {
		return fmt.Errorf("knowledge ingestion failed: %w", err)
	}

	router := api.NewRouter(api.NewAPIHandler(a.chat, logger))
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server, press Ctrl+C to quit", "addr", serverAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("could not listen on %s: %w", serverAddr, err)
	case <-quit:
	}
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("server exited gracefully")
	return nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
