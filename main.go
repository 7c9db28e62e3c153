package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pricecart/config"
	"pricecart/handlers"
	"pricecart/logger"
	"pricecart/scheduler"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "pricecart",
	Short: "Compare grocery prices across quick-commerce platforms",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// a missing .env is fine, the environment wins either way
		_ = godotenv.Load()

		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		log, err = logger.New(cfg.Log.Level, cfg.Scraper.Debug)
		return err
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Scrape every enabled platform once and print the merged products",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List the configured platforms",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), cfg, log, false)
		if err != nil {
			return err
		}
		defer a.close()

		t := newTable()
		t.AppendHeader(table.Row{"Platform", "Name", "Enabled"})
		for _, st := range a.platforms.Status() {
			t.AppendRow(table.Row{st.Platform, st.Name, st.Enabled})
		}
		t.Render()
		return nil
	},
}

func init() {
	searchCmd.Flags().Int("limit", 20, "maximum number of merged products")
	searchCmd.Flags().Bool("json", false, "print the raw JSON response")
	rootCmd.AddCommand(serveCmd, searchCmd, platformsCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if log != nil {
		_ = log.Sync()
	}
	if err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer a.close()

	tasks := scheduler.NewTaskManager(a.scrapes.Live, cfg.Scheduler.TaskWorkers, a.metrics, log)
	defer tasks.Stop()

	jobs := a.jobs()
	if err := jobs.Start(); err != nil {
		return err
	}
	defer jobs.Stop()

	h := handlers.NewHandlers(a.search, a.products, a.scrapes, tasks, log)
	router := handlers.NewRouter(h, handlers.RouterOptions{
		AllowedOrigins:     cfg.Server.AllowedOrigins,
		RateLimitPerSecond: cfg.Server.RateLimitPerSecond,
		APIKeys:            cfg.Server.APIKeys,
		Metrics:            a.metrics,
		Gatherer:           a.registry,
		Log:                log,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.Strings("platforms", a.platforms.EnabledKeys()),
			zap.Bool("headless", cfg.Scraper.RunHeadless()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	return nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	defer a.close()

	resp, err := a.search.Search(cmd.Context(), strings.Join(args, " "), limit)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	results := newTable()
	results.AppendHeader(table.Row{"Platform", "OK", "Products", "Error"})
	for _, r := range resp.Debug.PlatformResults {
		msg := ""
		if r.Error != nil {
			msg = *r.Error
		}
		results.AppendRow(table.Row{r.Platform, r.Success, r.ProductCount, msg})
	}
	results.Render()

	products := newTable()
	products.AppendHeader(table.Row{"Product", "Platform", "Price", "Delivery"})
	for _, p := range resp.Products {
		for i, price := range p.Prices {
			name := ""
			if i == 0 {
				name = p.Name
			}
			products.AppendRow(table.Row{name, price.Platform, fmt.Sprintf("₹%.2f", price.Price), price.DeliveryTime})
		}
		products.AppendSeparator()
	}
	products.Render()
	return nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
