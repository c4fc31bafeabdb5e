package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/efebarandurmaz/crucible/internal/config"
	"github.com/efebarandurmaz/crucible/internal/extract"
	"github.com/efebarandurmaz/crucible/internal/graph"
	graphneo4j "github.com/efebarandurmaz/crucible/internal/graph/neo4j"
	"github.com/efebarandurmaz/crucible/internal/ingest"
	"github.com/efebarandurmaz/crucible/internal/llm"
	"github.com/efebarandurmaz/crucible/internal/llmutil"
	"github.com/efebarandurmaz/crucible/internal/rag"
	temporalmod "github.com/efebarandurmaz/crucible/internal/temporal"
	"github.com/efebarandurmaz/crucible/internal/vector"
	"github.com/efebarandurmaz/crucible/internal/vector/qdrant"
	"github.com/spf13/cobra"

	temporalclient "go.temporal.io/sdk/client"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "crucible",
		Short: "GraphRAG ingestion and retrieval engine",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/crucible.yaml", "Config file path")

	rootCmd.AddCommand(
		newIngestCmd(&configPath),
		newQueryCmd(&configPath),
		newCollectionsCmd(&configPath),
		newPointsCmd(&configPath),
		newNodesCmd(&configPath),
		newProvidersCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// stack bundles the wired components a command needs.
type stack struct {
	cfg       *config.Config
	provider  llm.Provider
	vectors   *qdrant.Manager
	graph     *graphneo4j.Store
	service   *ingest.Service
	extractor *extract.Extractor
	pipeline  *rag.Pipeline
	prompts   *rag.PromptRegistry
}

func (s *stack) close(ctx context.Context) {
	if s.vectors != nil {
		s.vectors.Close()
	}
	if s.graph != nil {
		s.graph.Close(ctx)
	}
}

// buildStack connects to the stores and, when needLLM is set, creates the
// completion/embedding provider. Admin commands pass needLLM=false and work
// without any LLM configuration.
func buildStack(ctx context.Context, configPath string, needLLM bool) (*stack, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := log.New(os.Stderr)

	var provider llm.Provider
	if needLLM {
		factory := llm.NewFactory()
		llmutil.RegisterDefaultProviders(factory)
		provider, err = factory.Create(llm.ProviderConfig{
			Provider:   cfg.LLM.Provider,
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			EmbedModel: cfg.LLM.EmbedModel,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, err
		}
		if provider == nil {
			return nil, fmt.Errorf("this command needs an LLM provider (set llm.provider in %s)", configPath)
		}
	}

	vectors, err := qdrant.NewManager(ctx, cfg.Vector.Host, cfg.Vector.Port, logger.With("component", "vector"))
	if err != nil {
		return nil, err
	}
	graphStore, err := graphneo4j.NewStore(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
	if err != nil {
		vectors.Close()
		return nil, err
	}

	s := &stack{cfg: cfg, provider: provider, vectors: vectors, graph: graphStore, prompts: rag.NewPromptRegistry()}
	if needLLM {
		batcher := vector.NewBatcher(provider)
		s.extractor = extract.New(provider)
		s.service = ingest.NewService(vectors, graphStore, batcher, s.extractor)
		s.pipeline = rag.NewPipeline(batcher, vectors, graphStore, provider, s.prompts)
	}
	return s, nil
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		collection    string
		filePath      string
		asText        bool
		viaQueue      bool
		extractPrompt string
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest fragments or raw text into both stores",
		Long: `Reads a JSON array of fragments ({id, name, description, tags, category})
from --file, or raw text with --text (from --file or stdin), and ingests it
into the vector collection and the property graph under shared ids.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			input, err := readInput(filePath)
			if err != nil {
				return err
			}

			if viaQueue {
				return runIngestWorkflow(ctx, *configPath, collection, input, asText)
			}

			s, err := buildStack(ctx, *configPath, true)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			if extractPrompt != "" {
				s.prompts.Set(rag.KindExtract, extractPrompt)
			}
			s.prompts.ApplyExtractPrompt(s.extractor)

			if err := s.graph.EnsureUniqueIDConstraint(ctx); err != nil {
				return err
			}

			var metrics *ingest.RunMetrics
			if asText {
				metrics, err = s.service.IngestText(ctx, collection, string(input))
			} else {
				var fragments []ingest.Fragment
				if err := json.Unmarshal(input, &fragments); err != nil {
					return fmt.Errorf("parsing fragments: %w", err)
				}
				metrics, err = s.service.IngestFragments(ctx, collection, fragments)
			}
			if err != nil {
				return err
			}
			metrics.PrintSummary(os.Stdout)
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "fragments", "Vector collection name")
	cmd.Flags().StringVar(&filePath, "file", "", "Input file (default: stdin)")
	cmd.Flags().BoolVar(&asText, "text", false, "Treat input as raw text and run extraction")
	cmd.Flags().BoolVar(&viaQueue, "workflow", false, "Dispatch through the Temporal ingestion workflow")
	cmd.Flags().StringVar(&extractPrompt, "extract-prompt", "", "Override the extraction system prompt for this run")
	return cmd
}

// runIngestWorkflow hands the input to the durable ingestion workflow instead
// of running in-process.
func runIngestWorkflow(ctx context.Context, configPath, collection string, input []byte, asText bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	workflowInput := temporalmod.IngestInput{Collection: collection}
	if asText {
		workflowInput.Texts = []string{string(input)}
	} else {
		if err := json.Unmarshal(input, &workflowInput.Fragments); err != nil {
			return fmt.Errorf("parsing fragments: %w", err)
		}
	}

	taskQueue := cfg.Temporal.TaskQueue
	if taskQueue == "" {
		taskQueue = temporalmod.DefaultTaskQueue
	}
	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{TaskQueue: taskQueue},
		temporalmod.IngestWorkflow, workflowInput)
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}

	var output temporalmod.IngestOutput
	if err := run.Get(ctx, &output); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	fmt.Printf("Workflow %s complete: %d fragments, %d nodes, %d relationships, %d inserted, %d skipped\n",
		run.GetID(), output.Fragments, output.Nodes, output.Relationships, output.Inserted, output.Skipped)
	return nil
}

func newQueryCmd(configPath *string) *cobra.Command {
	var (
		collection  string
		topK        int
		ragTemplate string
		showContext bool
	)

	cmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Answer a question using vector search plus graph context",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			question := strings.Join(args, " ")

			s, err := buildStack(ctx, *configPath, true)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			if ragTemplate != "" {
				s.prompts.Set(rag.KindRAG, ragTemplate)
			}

			result, err := s.pipeline.RetrieverSearch(ctx, collection, question, topK)
			if err != nil {
				return err
			}
			gctx := rag.FormatGraphContext(result.Subgraph)
			if showContext {
				fmt.Println("Nodes:")
				for _, n := range gctx.Nodes {
					fmt.Println("  -", n)
				}
				fmt.Println("Edges:")
				for _, e := range gctx.Edges {
					fmt.Println("  -", e)
				}
				fmt.Println()
			}

			answer, err := s.pipeline.Answer(ctx, gctx, question)
			if err != nil {
				return err
			}
			fmt.Println(answer)
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "fragments", "Vector collection name")
	cmd.Flags().IntVar(&topK, "top-k", 5, "Number of vector hits to expand")
	cmd.Flags().StringVar(&ragTemplate, "rag-template", "", "Override the answer prompt template for this run")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "Print the graph context before the answer")
	return cmd
}

func newCollectionsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collections",
		Short: "Vector collection administration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			names, err := s.vectors.ListCollections(ctx)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "info [name]",
		Short: "Show a collection's configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			info, err := s.vectors.GetCollectionInfo(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Printf("name: %s\ndimension: %d\npoints: %d\n", info.Name, info.Dimension, info.PointsCount)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [name]",
		Short: "Drop a collection and all its points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)
			return s.vectors.DeleteCollection(ctx, args[0])
		},
	})

	return cmd
}

func newPointsCmd(configPath *string) *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "points",
		Short: "Vector point administration",
	}
	cmd.PersistentFlags().StringVar(&collection, "collection", "fragments", "Vector collection name")

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id...]",
		Short: "Print points by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			points, err := s.vectors.GetPoints(ctx, collection, args)
			if err != nil {
				return err
			}
			for _, p := range points {
				payload, _ := json.Marshal(p.Payload)
				fmt.Printf("%s\t%s\n", p.ID, payload)
			}
			return nil
		},
	})

	var deleteAll bool
	deleteCmd := &cobra.Command{
		Use:   "delete [id...]",
		Short: "Delete points by id (use --all to clear the collection)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			if deleteAll {
				return s.vectors.DeleteAllPoints(ctx, collection)
			}
			if len(args) == 0 {
				return fmt.Errorf("pass point ids or --all")
			}
			return s.vectors.DeletePoints(ctx, collection, args)
		},
	}
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "Delete every point in the collection")
	cmd.AddCommand(deleteCmd)

	return cmd
}

func newNodesCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Graph node administration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [id]",
		Short: "Print a node by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			node, err := s.graph.GetNodeByID(ctx, args[0])
			if err != nil {
				return err
			}
			if node == nil {
				fmt.Println("not found")
				return nil
			}
			printEntity(*node)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "find [name]",
		Short: "Find nodes by name (case-insensitive substring)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			nodes, err := s.graph.FindByName(ctx, args[0])
			if err != nil {
				return err
			}
			for _, n := range nodes {
				printEntity(n)
			}
			return nil
		},
	})

	var detach bool
	deleteCmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a node by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)
			return s.graph.DeleteNode(ctx, args[0], detach)
		},
	}
	deleteCmd.Flags().BoolVar(&detach, "detach", false, "Also delete the node's relationships")
	cmd.AddCommand(deleteCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "neighbors [id] [maxDepth]",
		Short: "List entities reachable within maxDepth hops (default 1)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := buildStack(ctx, *configPath, false)
			if err != nil {
				return err
			}
			defer s.close(ctx)

			maxDepth := 1
			if len(args) == 2 {
				maxDepth, err = strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("maxDepth: %w", err)
				}
			}
			neighbors, err := s.graph.ListNeighborsByDepth(ctx, args[0], 1, maxDepth)
			if err != nil {
				return err
			}
			for _, n := range neighbors {
				printEntity(n)
			}
			return nil
		},
	})

	return cmd
}

func newProvidersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println("  none           (admin commands only, no ingestion or query)")
			fmt.Println()
			fmt.Println("Configure in crucible.yaml or via environment:")
			fmt.Println("  CRUCIBLE_LLM_PROVIDER=groq")
			fmt.Println("  CRUCIBLE_LLM_API_KEY=gsk_...")
			fmt.Println("  CRUCIBLE_LLM_EMBED_MODEL=text-embedding-3-small")
		},
	}
}

func printEntity(e graph.Entity) {
	props, _ := json.Marshal(e.Properties)
	fmt.Printf("%s\t%s\t%v\t%s\n", e.ID, e.Name, e.Labels, props)
}

func readInput(filePath string) ([]byte, error) {
	if filePath == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filePath, err)
	}
	return data, nil
}
