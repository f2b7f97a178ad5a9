package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/adapter"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/repository"
	"github.com/m-mizutani/recall/pkg/service/toolproc"
	"github.com/m-mizutani/recall/pkg/usecase/chat"
	"github.com/m-mizutani/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// config holds configuration values
type config struct {
	appID    string
	logLevel string

	// LLM backend
	llmBackend     string
	ollamaBaseURL  string
	chatModel      string
	embeddingModel string
	geminiProject  string
	geminiLocation string

	// Memory store
	memoryBackend    string
	qdrantBaseURL    string
	qdrantCollection string
	dimension        int64
	searchLimit      int64

	// Tools
	toolsConfigPath string
	tavilyAPIKey    string
	firecrawlAPIKey string

	// Sanitizer bounds
	responseLimit     int64
	factsLimit        int64
	extractionCeiling int64
	extractionChunk   int64
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "app-id",
			Usage:       "Application ID scoping all memory reads and writes",
			Value:       "recall",
			Sources:     cli.EnvVars("RECALL_APP_ID"),
			Destination: &cfg.appID,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("RECALL_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-backend",
			Usage:       "LLM backend (ollama or gemini)",
			Value:       "ollama",
			Sources:     cli.EnvVars("RECALL_LLM"),
			Destination: &cfg.llmBackend,
		},
		&cli.StringFlag{
			Name:        "ollama-base-url",
			Usage:       "Ollama server base URL",
			Value:       "http://localhost:11434",
			Sources:     cli.EnvVars("OLLAMA_BASE_URL"),
			Destination: &cfg.ollamaBaseURL,
		},
		&cli.StringFlag{
			Name:        "chat-model",
			Usage:       "Chat model name",
			Sources:     cli.EnvVars("RECALL_CHAT_MODEL"),
			Destination: &cfg.chatModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("RECALL_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini",
			Sources:     cli.EnvVars("GEMINI_PROJECT_ID"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
	}
}

// memoryFlags returns flags for the vector store with destination config
func memoryFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "memory",
			Usage:       "Memory store backend (qdrant or chromem)",
			Value:       "qdrant",
			Sources:     cli.EnvVars("RECALL_MEMORY"),
			Destination: &cfg.memoryBackend,
		},
		&cli.StringFlag{
			Name:        "qdrant-base-url",
			Usage:       "Qdrant server base URL",
			Value:       "http://localhost:6333",
			Sources:     cli.EnvVars("QDRANT_URL"),
			Destination: &cfg.qdrantBaseURL,
		},
		&cli.StringFlag{
			Name:        "qdrant-collection",
			Usage:       "Qdrant collection name",
			Value:       "memories",
			Sources:     cli.EnvVars("QDRANT_COLLECTION"),
			Destination: &cfg.qdrantCollection,
		},
		&cli.IntFlag{
			Name:        "vector-dimension",
			Usage:       "Embedding dimension of the memory store",
			Value:       int64(model.VectorDimension),
			Sources:     cli.EnvVars("RECALL_VECTOR_DIMENSION"),
			Destination: &cfg.dimension,
		},
		&cli.IntFlag{
			Name:        "search-limit",
			Usage:       "Number of memories recalled per question",
			Value:       5,
			Sources:     cli.EnvVars("RECALL_SEARCH_LIMIT"),
			Destination: &cfg.searchLimit,
		},
	}
}

// toolFlags returns flags for external tool servers with destination config
func toolFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tools-config",
			Usage:       "Path to tool server definition YAML",
			Sources:     cli.EnvVars("RECALL_TOOLS_CONFIG"),
			Destination: &cfg.toolsConfigPath,
		},
		&cli.StringFlag{
			Name:        "tavily-api-key",
			Usage:       "Tavily API key for the web search tool",
			Sources:     cli.EnvVars("TAVILY_API_KEY"),
			Destination: &cfg.tavilyAPIKey,
		},
		&cli.StringFlag{
			Name:        "firecrawl-api-key",
			Usage:       "Firecrawl API key for the page scrape tool",
			Sources:     cli.EnvVars("FIRECRAWL_API_KEY"),
			Destination: &cfg.firecrawlAPIKey,
		},
	}
}

// boundsFlags returns flags for payload sanitizer limits with destination config
func boundsFlags(cfg *config) []cli.Flag {
	defaults := chat.DefaultBounds()
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "response-limit",
			Usage:       "Stored response length limit in characters",
			Value:       int64(defaults.ResponseLimit),
			Sources:     cli.EnvVars("RECALL_RESPONSE_LIMIT"),
			Destination: &cfg.responseLimit,
		},
		&cli.IntFlag{
			Name:        "facts-limit",
			Usage:       "Stored extracted-facts length limit in characters",
			Value:       int64(defaults.FactsLimit),
			Sources:     cli.EnvVars("RECALL_FACTS_LIMIT"),
			Destination: &cfg.factsLimit,
		},
		&cli.IntFlag{
			Name:        "extraction-ceiling",
			Usage:       "Fact-extraction request size ceiling in bytes",
			Value:       int64(defaults.ExtractionCeiling),
			Sources:     cli.EnvVars("RECALL_EXTRACTION_CEILING"),
			Destination: &cfg.extractionCeiling,
		},
		&cli.IntFlag{
			Name:        "extraction-chunk",
			Usage:       "Shrink step when an extraction request is oversized",
			Value:       int64(defaults.ExtractionChunk),
			Sources:     cli.EnvVars("RECALL_EXTRACTION_CHUNK"),
			Destination: &cfg.extractionChunk,
		},
	}
}

// agentFlags is every flag the pipeline commands share.
func agentFlags(cfg *config) []cli.Flag {
	flags := globalFlags(cfg)
	flags = append(flags, llmFlags(cfg)...)
	flags = append(flags, memoryFlags(cfg)...)
	flags = append(flags, toolFlags(cfg)...)
	flags = append(flags, boundsFlags(cfg)...)
	return flags
}

// setupContext installs the configured logger as the process default and
// attaches it to the context.
func (cfg *config) setupContext(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, os.Stderr)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newLLM creates the configured LLM adapter instance
func (cfg *config) newLLM(ctx context.Context) (adapter.LLM, error) {
	switch cfg.llmBackend {
	case "ollama":
		var opts []adapter.OllamaOption
		if cfg.chatModel != "" {
			opts = append(opts, adapter.WithChatModel(cfg.chatModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
		}
		return adapter.NewOllama(cfg.ollamaBaseURL, opts...)

	case "gemini":
		if cfg.geminiProject == "" {
			return nil, goerr.New("gemini-project is required")
		}
		var opts []adapter.GeminiOption
		if cfg.chatModel != "" {
			opts = append(opts, adapter.WithGenerativeModel(cfg.chatModel))
		}
		if cfg.embeddingModel != "" {
			opts = append(opts, adapter.WithGeminiEmbeddingModel(cfg.embeddingModel))
		}
		return adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)

	default:
		return nil, goerr.New("unknown llm backend", goerr.V("backend", cfg.llmBackend))
	}
}

// newRepository creates the configured memory store instance
func (cfg *config) newRepository() (repository.Repository, error) {
	switch cfg.memoryBackend {
	case "qdrant":
		return repository.NewQdrant(cfg.qdrantBaseURL, cfg.qdrantCollection, int(cfg.dimension))
	case "chromem":
		return repository.NewChromem(cfg.appID)
	default:
		return nil, goerr.New("unknown memory backend", goerr.V("backend", cfg.memoryBackend))
	}
}

// newToolConfig loads tool server definitions, falling back to the
// built-in tavily and firecrawl servers.
func (cfg *config) newToolConfig() (*toolproc.Config, error) {
	if cfg.toolsConfigPath != "" {
		return toolproc.LoadConfig(cfg.toolsConfigPath)
	}
	return toolproc.DefaultConfig(cfg.tavilyAPIKey, cfg.firecrawlAPIKey), nil
}

// newAgent wires the pipeline service from configuration.
func (cfg *config) newAgent(ctx context.Context) (*chat.Agent, error) {
	llm, err := cfg.newLLM(ctx)
	if err != nil {
		return nil, err
	}

	repo, err := cfg.newRepository()
	if err != nil {
		return nil, err
	}

	toolCfg, err := cfg.newToolConfig()
	if err != nil {
		return nil, err
	}

	return chat.New(chat.NewInput{
		LLM:        llm,
		Repo:       repo,
		Tools:      toolproc.New(),
		ToolConfig: toolCfg,
		AppID:      cfg.appID,
	},
		chat.WithDimension(int(cfg.dimension)),
		chat.WithSearchLimit(int(cfg.searchLimit)),
		chat.WithBounds(chat.Bounds{
			ResponseLimit:     int(cfg.responseLimit),
			FactsLimit:        int(cfg.factsLimit),
			ExtractionCeiling: int(cfg.extractionCeiling),
			ExtractionChunk:   int(cfg.extractionChunk),
		}),
	)
}
