package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docquery/docquery/internal/config"
	"github.com/docquery/docquery/internal/ingest"
	"github.com/docquery/docquery/internal/llm"
	"github.com/docquery/docquery/internal/server"
)

const version = "0.1.0"

func main() {
	// Populate provider API keys and friends from a local .env, if any.
	_ = godotenv.Load()

	var configPath string

	rootCmd := &cobra.Command{
		Use:     "docquery",
		Short:   "Retrieval-augmented question answering over a local document corpus",
		Version: version,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: ./docquery.yaml if present)")

	var (
		askSession string
		askJSON    bool
		askMode    string
		askK       int
	)
	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question against the ingested corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd.Context(), configPath, args[0], askSession, askMode, askK, askJSON)
		},
	}
	askCmd.Flags().StringVar(&askSession, "session", "", "Session id for conversational context")
	askCmd.Flags().BoolVar(&askJSON, "json", false, "Output the full result as JSON")
	askCmd.Flags().StringVar(&askMode, "mode", "", "Retrieval mode: knn, mmr, or bm25 (overrides retrieval.mode)")
	askCmd.Flags().IntVar(&askK, "k", 0, "Number of chunks to retrieve (overrides retrieval.k)")

	var ingestDir string
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Load, chunk, embed, and store the document corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd.Context(), configPath, ingestDir)
		},
	}
	ingestCmd.Flags().StringVar(&ingestDir, "dir", "", "Data directory (overrides data.dir)")

	var serveAddr string
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the question-answering API over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, serveAddr)
		},
	}
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.listen_addr)")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (skip this chain slot)")
			fmt.Println()
			fmt.Println("Configure in docquery.yaml or via environment:")
			fmt.Println("  DOCQUERY_LLM_CHAIN=anthropic,openai")
			fmt.Println("  ANTHROPIC_API_KEY=sk-ant-...")
			fmt.Println("  OPENAI_API_KEY=sk-...")
		},
	}

	rootCmd.AddCommand(askCmd, ingestCmd, serveCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runAsk(ctx context.Context, configPath, question, sessionID, mode string, k int, asJSON bool) error {
	a, err := buildApp(ctx, configPath, func(cfg *config.Config) {
		if mode != "" {
			cfg.Retrieval.Mode = mode
		}
		if k > 0 {
			cfg.Retrieval.K = k
		}
	})
	if err != nil {
		return err
	}
	defer a.close(ctx)

	res, err := a.pipeline.Answer(ctx, question, sessionID)
	if err != nil {
		return err
	}

	if asJSON {
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(res.Answer)
	if len(res.Sources) > 0 {
		fmt.Println()
		fmt.Println("Sources:")
		for _, s := range res.Sources {
			fmt.Printf("  - %s\n", s)
		}
	}
	fmt.Printf("\nSession: %s\n", res.SessionID)
	return nil
}

func runIngest(ctx context.Context, configPath, dir string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	if dir == "" {
		dir = a.cfg.Data.Dir
	}

	if a.qdrant != nil {
		if err := a.qdrant.EnsureCollection(ctx, uint64(a.embedder.Dimension())); err != nil {
			return err
		}
	}

	ing := ingest.New(a.store, a.embedder, ingest.NewSplitter(ingest.DefaultChunkSize, ingest.DefaultOverlap), nil)
	n, err := ing.Run(ctx, dir)
	if err != nil {
		return err
	}
	fmt.Printf("Ingested %d chunks from %s\n", n, dir)
	return nil
}

func runServe(ctx context.Context, configPath, addr string) error {
	a, err := buildApp(ctx, configPath)
	if err != nil {
		return err
	}

	if addr == "" {
		addr = a.cfg.Server.ListenAddr
	}
	srv := server.NewServer(&server.Config{ListenAddr: addr}, a.pipeline, a.store)

	sh := server.NewShutdownHandler(0)
	sh.RegisterHook("api-server", 10, srv.Stop)
	sh.RegisterHook("tracing", 80, a.tracing.Shutdown)
	if a.qdrant != nil {
		sh.RegisterHook("qdrant", 90, func(context.Context) error { return a.qdrant.Close() })
	}
	sh.Start()

	if err := srv.Start(); err != nil {
		sh.Shutdown()
		sh.Wait()
		return err
	}

	// Listener closed by a shutdown hook; wait for the rest to finish.
	sh.Wait()
	return nil
}
