package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/gradmall/mallchat/ai"
	"github.com/gradmall/mallchat/ai/core/llm"
	"github.com/gradmall/mallchat/ai/facade"
	"github.com/gradmall/mallchat/ai/knowledge"
	"github.com/gradmall/mallchat/ai/metrics"
	"github.com/gradmall/mallchat/ai/session"
	"github.com/gradmall/mallchat/ai/summary"
	"github.com/gradmall/mallchat/ai/tools"
	"github.com/gradmall/mallchat/ai/workflow"
	"github.com/gradmall/mallchat/internal/profile"
	"github.com/gradmall/mallchat/internal/version"
	"github.com/gradmall/mallchat/server"
)

var rootCmd = &cobra.Command{
	Use:   "mallchat",
	Short: "AI customer service backend for the project marketplace: intent routing, hybrid retrieval, and tool calling over one chat API.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		// Only load .env for direct binary execution (not when running as systemd service)
		if !isRunningAsSystemdService() {
			_ = godotenv.Load()
		}
		return nil
	},
	Run: func(_ *cobra.Command, _ []string) {
		instanceProfile := &profile.Profile{
			Mode:    viper.GetString("mode"),
			Addr:    viper.GetString("addr"),
			Port:    viper.GetInt("port"),
			Data:    viper.GetString("data"),
			Driver:  viper.GetString("driver"),
			DSN:     viper.GetString("dsn"),
			Version: version.GetCurrentVersion(viper.GetString("mode")),
		}
		instanceProfile.FromEnv()
		if err := instanceProfile.Validate(); err != nil {
			panic(err)
		}

		if instanceProfile.IsDev() {
			slog.SetLogLoggerLevel(slog.LevelDebug)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		engine, store, exporter, err := buildEngine(ctx, instanceProfile)
		if err != nil {
			slog.Error("failed to assemble chat engine", "error", err)
			return
		}

		s, err := server.NewServer(instanceProfile, engine, store, exporter)
		if err != nil {
			slog.Error("failed to create server", "error", err)
			return
		}

		c := make(chan os.Signal, 1)
		// Trigger graceful shutdown on SIGINT or SIGTERM.
		signal.Notify(c, terminationSignals...)

		if err := s.Start(ctx); err != nil {
			slog.Error("failed to start server", "error", err)
			return
		}

		printGreetings(instanceProfile)

		go func() {
			<-c
			s.Shutdown(ctx)
			cancel()
		}()

		<-ctx.Done()
	},
}

// buildEngine assembles the workflow graph and its collaborators from the profile.
func buildEngine(ctx context.Context, instanceProfile *profile.Profile) (*workflow.Engine, session.Store, *metrics.PrometheusExporter, error) {
	aiConfig := ai.NewConfigFromProfile(instanceProfile)
	if err := aiConfig.Validate(); err != nil {
		return nil, nil, nil, err
	}

	exporter := metrics.NewPrometheusExporter(metrics.DefaultConfig())

	var llmService llm.Service
	if aiConfig.Enabled {
		var err error
		llmService, err = ai.NewLLMService(&aiConfig.LLM)
		if err != nil {
			return nil, nil, nil, err
		}
		llmService = ai.InstrumentLLM(llmService, exporter, aiConfig.LLM.Provider, aiConfig.LLM.Model)
		slog.Info("LLM service initialized",
			"provider", aiConfig.LLM.Provider,
			"model", aiConfig.LLM.Model,
		)

		// Warmup is best-effort; failures do not block startup.
		go func() {
			warmupCtx, warmupCancel := context.WithTimeout(ctx, 10*time.Second)
			defer warmupCancel()
			llmService.Warmup(warmupCtx)
		}()
	} else {
		slog.Warn("LLM API key not configured, responders will degrade to canned replies")
	}

	intentLLM := ai.NewIntentLLMService(&aiConfig.IntentClassifier, llmService)

	// Retrieval stack: on-disk collections, hybrid retriever, optional rerank API.
	var retriever *knowledge.Retriever
	if aiConfig.Enabled {
		embedder, err := ai.NewEmbeddingService(&aiConfig.Embedding)
		if err != nil {
			slog.Warn("Embedding service unavailable, knowledge retrieval disabled", "error", err)
		} else {
			knowledgeStore := knowledge.NewStore(aiConfig.Retrieval.PersistDir, embedder)
			retriever = knowledge.NewRetriever(knowledgeStore, llmService, knowledge.RetrieverConfig{
				TopK:                aiConfig.Retrieval.TopK,
				UseHybridSearch:     aiConfig.Retrieval.UseHybridSearch,
				UseRerank:           aiConfig.Retrieval.UseRerank,
				UseQueryRewrite:     aiConfig.Retrieval.UseQueryRewrite,
				RerankTopK:          aiConfig.Retrieval.RerankTopK,
				SimilarityThreshold: float64(aiConfig.Retrieval.SimilarityThreshold),
			})
			if aiConfig.Reranker.Enabled {
				retriever.SetReranker(ai.NewRerankerService(&aiConfig.Reranker))
				slog.Info("Reranker service initialized",
					"provider", aiConfig.Reranker.Provider,
					"model", aiConfig.Reranker.Model,
				)
			}
		}
	}

	store, err := newSessionStore(instanceProfile, aiConfig)
	if err != nil {
		return nil, nil, nil, err
	}

	var summarizer summary.Summarizer
	if llmService != nil {
		summarizer = summary.NewSummarizer(llmService, summary.Config{
			TriggerThreshold: aiConfig.Memory.SummaryTriggerThreshold,
			MaxContextTokens: aiConfig.Memory.ContextMaxTokens,
		})
	}

	// 外部数据门面: demo 模式使用内置演示数据
	memoryFacade := facade.NewMemoryFacade()
	if instanceProfile.Mode == "demo" {
		memoryFacade.SeedDemoData()
		slog.Info("Demo data seeded")
	}
	bundle := memoryFacade.Bundle()

	registry, err := tools.NewDefaultRegistry(bundle)
	if err != nil {
		return nil, nil, nil, err
	}

	deps := workflow.Dependencies{
		LLM:        llmService,
		IntentLLM:  intentLLM,
		Store:      store,
		Registry:   registry,
		Summarizer: summarizer,
		Facade:     bundle,
		Metrics:    exporter,
	}
	// nil 指针不能直接塞进接口字段, 否则判空失效
	if retriever != nil {
		deps.Retriever = retriever
	}

	engine := workflow.NewEngine(deps, workflow.Config{
		RequestTimeout:          time.Duration(instanceProfile.RequestTimeout) * time.Second,
		RetrievalTopK:           aiConfig.Retrieval.TopK,
		IntentHistorySize:       aiConfig.Intent.HistorySize,
		IntentFallbackThreshold: float64(aiConfig.Intent.FallbackThreshold),
	})

	return engine, store, exporter, nil
}

// newSessionStore picks the session backing: sqlite when a DSN is
// configured, in-memory otherwise.
func newSessionStore(instanceProfile *profile.Profile, aiConfig *ai.Config) (session.Store, error) {
	opts := []session.MemoryStoreOption{
		session.WithMaxHistory(aiConfig.Memory.MaxHistory),
		session.WithMaxSessions(aiConfig.Memory.MaxSessions),
	}

	if instanceProfile.Driver == "sqlite" && instanceProfile.DSN != "" {
		store, err := session.NewSQLiteStore(instanceProfile.DSN, opts...)
		if err != nil {
			return nil, err
		}
		slog.Info("Session store: sqlite", "dsn", instanceProfile.DSN)
		return store, nil
	}

	slog.Info("Session store: in-memory")
	return session.NewMemoryStore(opts...), nil
}

func init() {
	viper.SetDefault("mode", "demo")
	viper.SetDefault("driver", "memory")
	viper.SetDefault("port", 8000)

	rootCmd.PersistentFlags().String("mode", "demo", `mode of server, can be "prod" or "dev" or "demo"`)
	rootCmd.PersistentFlags().String("addr", "", "address of server")
	rootCmd.PersistentFlags().Int("port", 8000, "port of server")
	rootCmd.PersistentFlags().String("data", "", "data directory")
	rootCmd.PersistentFlags().String("driver", "memory", "session store driver (memory, sqlite)")
	rootCmd.PersistentFlags().String("dsn", "", "sqlite data source name for durable sessions")

	for _, flag := range []string{"mode", "addr", "port", "data", "driver", "dsn"} {
		if err := viper.BindPFlag(flag, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	viper.SetEnvPrefix("mallchat")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
}

func printGreetings(instanceProfile *profile.Profile) {
	fmt.Printf("MallChat %s started successfully!\n", instanceProfile.Version)

	if instanceProfile.IsDev() {
		fmt.Fprint(os.Stderr, "Development mode is enabled\n")
		if instanceProfile.DSN != "" {
			fmt.Fprintf(os.Stderr, "Session database: %s\n", instanceProfile.DSN)
		}
	}

	fmt.Printf("Data directory: %s\n", instanceProfile.Data)
	fmt.Printf("Mode: %s\n", instanceProfile.Mode)

	if len(instanceProfile.Addr) == 0 {
		fmt.Printf("Server running on port %d\n", instanceProfile.Port)
		fmt.Printf("Chat API at: http://localhost:%d/api/v1/chat/message\n", instanceProfile.Port)
	} else {
		fmt.Printf("Server running on %s:%d\n", instanceProfile.Addr, instanceProfile.Port)
	}
}

// isRunningAsSystemdService detects if the process is running under systemd.
func isRunningAsSystemdService() bool {
	return os.Getenv("INVOCATION_ID") != "" || os.Getenv("WATCHDOG_USEC") != ""
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		panic(err)
	}
}
