package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"quorum/internal/council"
	"quorum/internal/history"
	"quorum/internal/provider"
	"quorum/internal/search"
	"quorum/internal/synthesis"
	"quorum/internal/types"
)

var (
	consultMembers    []string
	consultDomain     string
	consultMode       string
	consultContext    string
	consultSession    string
	consultStream     bool
	consultJSON       bool
	consultAutoRecall bool
	consultNoSearch   bool
	consultMaxTokens  int
	consultTemp       float64
)

var consultCmd = &cobra.Command{
	Use:   "consult [query]",
	Short: "Put a question to the panel",
	Args:  cobra.ExactArgs(1),
	RunE:  runConsult,
}

func init() {
	consultCmd.Flags().StringSliceVarP(&consultMembers, "members", "m", nil, "persona ids (default: domain panel)")
	consultCmd.Flags().StringVarP(&consultDomain, "domain", "d", "", "domain whose default panel to use")
	consultCmd.Flags().StringVar(&consultMode, "mode", "", "consultation mode: individual, sequential, synthesis, debate, vote")
	consultCmd.Flags().StringVar(&consultContext, "context", "", "background context for the panel")
	consultCmd.Flags().StringVar(&consultSession, "session", "", "session id to continue")
	consultCmd.Flags().BoolVar(&consultStream, "stream", false, "emit JSON events as they happen")
	consultCmd.Flags().BoolVar(&consultJSON, "json", false, "print the final result as JSON")
	consultCmd.Flags().BoolVar(&consultAutoRecall, "recall", false, "inject relevant past consultations")
	consultCmd.Flags().BoolVar(&consultNoSearch, "no-search", false, "disable web search augmentation")
	consultCmd.Flags().IntVar(&consultMaxTokens, "max-tokens", 0, "per-member completion budget")
	consultCmd.Flags().Float64Var(&consultTemp, "temperature", 0, "sampling temperature override")
}

func buildOrchestrator() (*council.Orchestrator, error) {
	factory := provider.NewFactory(&cfg.Providers)
	resolver := provider.NewResolver(cfg.Providers.Priority, &cfg.Providers)

	var searcher *search.Manager
	if cfg.Search.Enabled && !consultNoSearch {
		backends := []search.Backend{}
		switch cfg.Search.Backend {
		case "browser":
			backends = append(backends, search.NewBrowserBackend(cfg.Search.BrowserURL), search.NewDuckDuckGoBackend(nil))
		default:
			backends = append(backends, search.NewDuckDuckGoBackend(nil))
		}
		searcher = search.NewManager(backends, cfg.Search.MaxResults,
			time.Duration(cfg.Search.TimeoutSeconds)*time.Second)
	}

	var recaller *history.Recaller
	if cfg.History.Enabled {
		if err := openHistory(); err != nil {
			return nil, err
		}
		if cfg.History.RecallEnabled || consultAutoRecall {
			key := provider.ResolveCredential(provider.ProviderGemini, "", &cfg.Providers)
			var err error
			recaller, err = history.NewRecaller(historyStore, key, cfg.History.EmbeddingModel)
			if err != nil {
				logger.Warn("recall disabled", zap.Error(err))
			}
		}
	}

	return council.New(council.Deps{
		Personas: personaStore,
		Factory:  factory,
		Resolver: resolver,
		Search:   searcher,
		History:  historyStore,
		Recaller: recaller,
	}, cfg.Council), nil
}

func runConsult(cmd *cobra.Command, args []string) error {
	orch, err := buildOrchestrator()
	if err != nil {
		return err
	}

	req := types.ConsultationRequest{
		Query:       args[0],
		Context:     consultContext,
		Domain:      consultDomain,
		Members:     consultMembers,
		Mode:        types.Mode(consultMode),
		Provider:    cliProvider,
		Model:       cliModel,
		BaseURL:     baseURL,
		APIKey:      apiKey,
		Temperature: consultTemp,
		MaxTokens:   consultMaxTokens,
		SessionID:   consultSession,
		AutoRecall:  consultAutoRecall,
	}

	ctx, cancel := signalContext(cmd)
	defer cancel()

	if consultStream {
		events, err := orch.ConsultStream(ctx, req)
		if err != nil {
			return err
		}
		for ev := range events {
			fmt.Println(string(ev.JSON()))
		}
		return nil
	}

	result, err := orch.Consult(ctx, req)
	if err != nil {
		return err
	}
	if consultJSON {
		fmt.Println(string(types.CompleteEvent(result).JSON()))
		return nil
	}
	printResult(result)
	return nil
}

func printResult(result *types.ConsultationResult) {
	for _, r := range result.Responses {
		fmt.Printf("=== %s", r.PersonaID)
		if r.Provider != "" {
			fmt.Printf(" (%s/%s, %v)", r.Provider, r.Model, r.Latency.Round(time.Millisecond))
		}
		fmt.Println(" ===")
		if r.Failed() {
			fmt.Fprintf(os.Stderr, "  error: %s\n\n", r.Err)
			continue
		}
		fmt.Println(r.Content)
		fmt.Println()
	}

	if result.Synthesis != "" {
		fmt.Println("=== synthesis ===")
		fmt.Println(result.Synthesis)
		fmt.Println()
	}
	if result.Analysis != nil {
		fmt.Println(synthesis.FormatAnalysis(result.Analysis))
		fmt.Println()
	}
	if len(result.Ranking) > 0 {
		fmt.Println("=== ranking ===")
		for i, t := range result.Ranking {
			fmt.Printf("  %d. %s (score %.0f, %d votes)\n", i+1, t.Option, t.Score, t.Votes)
		}
		fmt.Println()
	}
	fmt.Printf("consultation %s: %d tokens\n", result.ID, result.Usage.TotalTokens)
}
