// MarketMind — market-intelligence query engine.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/fahimulhaque/MarketMind/api"
	"github.com/fahimulhaque/MarketMind/internal/config"
	"github.com/fahimulhaque/MarketMind/internal/enrich"
	"github.com/fahimulhaque/MarketMind/internal/entity"
	"github.com/fahimulhaque/MarketMind/internal/ingest"
	"github.com/fahimulhaque/MarketMind/internal/llm"
	"github.com/fahimulhaque/MarketMind/internal/memory"
	"github.com/fahimulhaque/MarketMind/internal/pipeline"
	"github.com/fahimulhaque/MarketMind/internal/provider"
	"github.com/fahimulhaque/MarketMind/internal/providers"
	"github.com/fahimulhaque/MarketMind/internal/retrieve"
	"github.com/fahimulhaque/MarketMind/internal/store"
	"github.com/fahimulhaque/MarketMind/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Global config
var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "marketmind",
	Short: "MarketMind — market-intelligence query engine",
	Long: `MarketMind resolves company queries against a persistent intelligence
store: multi-provider enrichment, policy-gated ingestion, hybrid
retrieval, and LLM-assisted report generation with progressive
streaming.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(enrichCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(migrateCmd)
}

// app bundles the wired application components.
type app struct {
	store      *store.Store
	resolver   *entity.Resolver
	dispatcher *provider.Dispatcher
	queue      *ingest.Queue
	fred       *providers.FRED
	pipeline   *pipeline.Pipeline
}

// buildApp wires the full component graph from configuration.
func buildApp(ctx context.Context) (*app, error) {
	st, err := store.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	embedder := memory.NewEmbedder(cfg.LLM.OllamaHost, cfg.Embedding.Model, cfg.Embedding.VectorSize)

	var profiles entity.ProfileLookup
	if cfg.Providers.FMPAPIKey != "" {
		profiles = entity.NewFMPProfiles("", cfg.Providers.FMPAPIKey)
	}
	resolver := entity.NewResolver(st, entity.NewYahooSearch(""),
		entity.NewCIKRegistry(cfg.Providers.SECUserAgent), profiles)

	fred := providers.NewFRED(st, cfg.Providers.FREDAPIKey)
	dispatcher := provider.NewDispatcher(st, provider.NewBudgetTracker(),
		providers.NewSEC(st, cfg.Providers.SECUserAgent),
		providers.NewFMP(st, cfg.Providers.FMPAPIKey),
		providers.NewAlphaVantage(st, cfg.Providers.AlphaVantageKey),
		providers.NewPolygon(st, cfg.Providers.PolygonAPIKey),
		fred,
		providers.NewReddit(st),
		providers.NewDuckDuckGo(st),
		providers.NewFinviz(st),
		providers.NewFINRA(st),
		providers.NewCboe(st),
	)

	worker := ingest.NewWorker(st, ingest.NewPolicy(cfg.Ingest), embedder, cfg.Ingest)
	queue := ingest.NewQueue(worker, 256)

	var filler enrich.GapFiller
	if cfg.Providers.FMPAPIKey != "" {
		filler = enrich.NewFMPGapFiller(cfg.Providers.FMPAPIKey)
	}
	sections := enrich.NewBuilder(st, enrich.NewYahooQuotes(""), filler, enrich.NewYahooBackfill("", st))

	gen, err := llm.NewClient(cfg.LLM)
	if err != nil {
		log.Printf("marketmind: generation backend unavailable, using templates: %v", err)
	}

	deps := pipeline.Deps{
		Resolver:  resolver,
		Store:     st,
		Retriever: retrieve.New(st, embedder),
		Enricher:  dispatcher,
		Sections:  sections,
		Priority:  priorityIngest(st, queue),
	}
	if gen != nil {
		deps.Generator = gen
	}

	return &app{
		store:      st,
		resolver:   resolver,
		dispatcher: dispatcher,
		queue:      queue,
		fred:       fred,
		pipeline:   pipeline.New(cfg.Pipeline, deps),
	}, nil
}

// priorityIngest enqueues sources whose names match the query's leading
// token into the priority lane and returns a task id for the batch.
func priorityIngest(st *store.Store, queue *ingest.Queue) pipeline.PriorityIngest {
	return func(ctx context.Context, query string) (string, error) {
		fields := strings.Fields(query)
		if len(fields) == 0 {
			return "", nil
		}
		sources, err := st.FindSourcesByName(ctx, fields[0], 5)
		if err != nil {
			return "", err
		}
		if len(sources) == 0 {
			return "", nil
		}
		for _, src := range sources {
			if err := queue.EnqueuePriority(src); err != nil {
				return "", err
			}
		}
		return uuid.NewString(), nil
	}
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("MarketMind %s\n", version)
		fmt.Printf("  commit:  %s\n", commit)
		fmt.Printf("  built:   %s\n", date)
	},
}

// --- Serve Command (API server) ---

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.store.Close()

		workerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		a.queue.Start(workerCtx, cfg.Ingest.WorkerConcurrency)

		srv := api.NewServer(cfg, api.Deps{
			Engine:   a.pipeline,
			Suggest:  a.resolver,
			Resolver: a.resolver,
			Enricher: a.dispatcher,
			Ingestor: a.queue,
			Repo:     a.store,
		})
		addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
		log.Printf("marketmind: serving on %s", addr)
		return srv.ListenAndServe(addr)
	},
}

// --- Worker Command (ingestion + scheduled maintenance) ---

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the background ingestion worker and schedulers",
	Long: `Runs the ingestion worker pool plus the scheduled jobs: hourly
re-ingestion of active sources, six-hourly macro series refresh, and
daily retention purge.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.store.Close()

		a.queue.Start(ctx, cfg.Ingest.WorkerConcurrency)

		enqueueActive := func() {
			sources, err := a.store.ListActiveSources(ctx)
			if err != nil {
				log.Printf("worker: list sources: %v", err)
				return
			}
			for _, src := range sources {
				if err := a.queue.Enqueue(src); err != nil {
					log.Printf("worker: enqueue %s: %v", src.Name, err)
				}
			}
			log.Printf("worker: enqueued %d sources", len(sources))
		}

		c := cron.New()
		if _, err := c.AddFunc("@hourly", enqueueActive); err != nil {
			return err
		}
		if _, err := c.AddFunc("@every 6h", func() {
			res := a.fred.RefreshSeries(ctx)
			log.Printf("worker: macro refresh: stored=%d success=%v", res.RecordsStored, res.Success)
		}); err != nil {
			return err
		}
		if _, err := c.AddFunc("@daily", func() {
			purged, err := a.store.RunRetentionPurge(ctx, cfg.Retention)
			if err != nil {
				log.Printf("worker: retention purge: %v", err)
				return
			}
			log.Printf("worker: retention purge removed %d rows", purged)
		}); err != nil {
			return err
		}
		c.Start()
		defer c.Stop()

		enqueueActive()
		log.Println("worker: running")
		<-ctx.Done()
		log.Println("worker: shutting down")
		return nil
	},
}

// --- Enrich Command (one-shot provider pass) ---

var enrichCmd = &cobra.Command{
	Use:   "enrich [ticker]",
	Short: "Run a full provider enrichment pass for one ticker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.store.Close()

		ticker := strings.ToUpper(args[0])
		ent, ok, err := a.resolver.Resolve(ctx, ticker, ticker)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("entity not found for %q", ticker)
		}

		summary := a.dispatcher.RunFullEnrichment(ctx, ent, func(res provider.ProviderResult) {
			status := "ok"
			if !res.Success {
				status = "failed: " + res.Error
			}
			fmt.Printf("  %-14s %-10s %4d records  %s\n", res.Provider, res.DataType, res.RecordsStored, status)
		})
		fmt.Printf("Enriched %s: %d providers, %d records, %d RSS sources discovered\n",
			ent.Ticker, len(summary.ProvidersRun), summary.TotalRecords, summary.RSSSourcesDiscovered)
		return nil
	},
}

// --- Ingest Command (one-shot source ingest) ---

var ingestCmd = &cobra.Command{
	Use:   "ingest [source-id|all]",
	Short: "Ingest one source by id, or all active sources",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.store.Close()

		var sources []models.Source
		if args[0] == "all" {
			if sources, err = a.store.ListActiveSources(ctx); err != nil {
				return err
			}
		} else {
			var id int64
			if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
				return fmt.Errorf("source id must be numeric or 'all'")
			}
			src, err := a.store.GetSource(ctx, id)
			if err != nil {
				return err
			}
			sources = []models.Source{src}
		}
		return a.queue.IngestAll(ctx, sources, cfg.Ingest.WorkerConcurrency)
	},
}

// --- Query Command (one-shot pipeline run) ---

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Run one intelligence query and print the report JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.store.Close()

		limit, _ := cmd.Flags().GetInt("limit")
		report, err := a.pipeline.Run(ctx, strings.Join(args, " "), limit)
		if err != nil {
			return err
		}
		return printJSON(report)
	},
}

func init() {
	queryCmd.Flags().Int("limit", 20, "maximum evidence items (1-50)")
}

// --- Migrate Command ---

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		st, err := store.New(ctx, cfg.Database.DSN(), cfg.Database.MaxConns)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return err
		}
		fmt.Println("schema up to date")
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
