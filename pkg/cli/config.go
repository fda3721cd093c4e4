package cli

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/donna/pkg/adapter"
	"github.com/m-mizutani/donna/pkg/interfaces"
	"github.com/m-mizutani/donna/pkg/model"
	"github.com/m-mizutani/donna/pkg/policy"
	"github.com/m-mizutani/donna/pkg/repository"
	"github.com/m-mizutani/donna/pkg/tool"
	notetool "github.com/m-mizutani/donna/pkg/tool/notes"
	"github.com/m-mizutani/donna/pkg/usecase/chat"
	"github.com/m-mizutani/donna/pkg/utils/logging"
	"github.com/m-mizutani/donna/pkg/utils/tracing"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

const (
	backendLocal = "local"
	backendCloud = "cloud"
)

// config holds configuration values
type config struct {
	// Logging and tracing
	logLevel      string
	logFormat     string
	traceExporter string

	// Backend
	backend         string
	dataDir         string
	project         string
	database        string
	notesCollection string
	bucket          string

	// Adapters
	geminiProject   string
	geminiLocation  string
	generativeModel string
	embeddingModel  string

	// Agents
	profilePath   string
	policyDir     string
	maxIterations int64
	modelTimeout  time.Duration
	storeTimeout  time.Duration
	dimension     int64
}

// loggingFlags returns flags for logs and traces
func loggingFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("DONNA_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console, json)",
			Value:       string(logging.FormatConsole),
			Sources:     cli.EnvVars("DONNA_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "trace-exporter",
			Usage:       "Trace exporter (none, stdout)",
			Value:       tracing.ExporterNone,
			Sources:     cli.EnvVars("DONNA_TRACE_EXPORTER"),
			Destination: &cfg.traceExporter,
		},
	}
}

// backendFlags returns flags selecting where notes and checkpoints live
func backendFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "backend",
			Usage:       "Storage backend (local, cloud)",
			Value:       backendLocal,
			Sources:     cli.EnvVars("DONNA_BACKEND"),
			Destination: &cfg.backend,
		},
		&cli.StringFlag{
			Name:        "data-dir",
			Usage:       "Directory of local databases",
			Value:       "./data",
			Sources:     cli.EnvVars("DONNA_DATA_DIR"),
			Destination: &cfg.dataDir,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID (cloud backend)",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID (cloud backend)",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "notes-collection",
			Usage:       "Firestore collection of notes (cloud backend)",
			Value:       "notes",
			Sources:     cli.EnvVars("DONNA_NOTES_COLLECTION"),
			Destination: &cfg.notesCollection,
		},
		&cli.StringFlag{
			Name:        "storage-bucket",
			Usage:       "Cloud Storage bucket of checkpoint snapshots (cloud backend)",
			Sources:     cli.EnvVars("DONNA_STORAGE_BUCKET"),
			Destination: &cfg.bucket,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
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
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model name",
			Sources:     cli.EnvVars("DONNA_GEMINI_MODEL"),
			Destination: &cfg.generativeModel,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("DONNA_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Dimension of note embeddings",
			Value:       int64(notetool.DefaultDimension),
			Sources:     cli.EnvVars("DONNA_EMBEDDING_DIMENSION"),
			Destination: &cfg.dimension,
		},
	}
}

// agentFlags returns flags tuning the agent loops and the note policy
func agentFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Path to YAML agent profile",
			Sources:     cli.EnvVars("DONNA_CONFIG"),
			Destination: &cfg.profilePath,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies overriding the built-in note policy",
			Sources:     cli.EnvVars("DONNA_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.IntFlag{
			Name:        "max-iterations",
			Usage:       "Maximum reasoning iterations per turn",
			Sources:     cli.EnvVars("DONNA_MAX_ITERATIONS"),
			Destination: &cfg.maxIterations,
		},
		&cli.DurationFlag{
			Name:        "model-timeout",
			Usage:       "Timeout of a single model call",
			Sources:     cli.EnvVars("DONNA_MODEL_TIMEOUT"),
			Destination: &cfg.modelTimeout,
		},
		&cli.DurationFlag{
			Name:        "store-timeout",
			Usage:       "Timeout of a single note store operation",
			Sources:     cli.EnvVars("DONNA_STORE_TIMEOUT"),
			Destination: &cfg.storeTimeout,
		},
	}
}

// sessionFlags returns flags identifying the conversation
func sessionFlags(session *model.SessionIdentity) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User ID owning notes and threads",
			Value:       "005",
			Sources:     cli.EnvVars("DONNA_USER_ID"),
			Destination: (*string)(&session.UserID),
		},
		&cli.StringFlag{
			Name:        "thread-id",
			Aliases:     []string{"t"},
			Usage:       "Conversation thread ID",
			Value:       "terminal",
			Sources:     cli.EnvVars("DONNA_THREAD_ID"),
			Destination: (*string)(&session.ThreadID),
		},
	}
}

// setup configures logging and tracing for a command. The returned function
// flushes traces.
func (cfg *config) setup(ctx context.Context) (context.Context, func(), error) {
	if _, err := logging.ParseLevel(cfg.logLevel); err != nil {
		return nil, nil, err
	}
	switch logging.Format(cfg.logFormat) {
	case logging.FormatConsole, logging.FormatJSON:
	default:
		return nil, nil, goerr.New("invalid log format", goerr.V("format", cfg.logFormat))
	}
	logger := logging.New(cfg.logLevel, os.Stderr, logging.WithFormat(logging.Format(cfg.logFormat)))
	logging.SetDefault(logger)
	ctx = logging.With(ctx, logger)

	shutdown, err := tracing.Setup(ctx, cfg.traceExporter, os.Stderr)
	if err != nil {
		return nil, nil, err
	}

	return ctx, func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("failed to flush traces", "error", err)
		}
	}, nil
}

// newGemini creates a Gemini adapter guarded by a circuit breaker
func (cfg *config) newGemini(ctx context.Context, breaker adapter.BreakerConfig) (adapter.Gemini, error) {
	if cfg.geminiProject == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.generativeModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.generativeModel))
	}
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}

	client, err := adapter.NewGemini(ctx, cfg.geminiProject, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return adapter.NewGeminiBreaker(client, breaker), nil
}

// newPolicy loads the note policy from policy-dir, or the built-in one
func (cfg *config) newPolicy(ctx context.Context) (*policy.Engine, error) {
	if cfg.policyDir != "" {
		return policy.NewFromDir(ctx, cfg.policyDir)
	}
	return policy.New(ctx)
}

// backend bundles the stores selected by --backend
type backend struct {
	notes                 interfaces.NoteStore
	supervisorCheckpoints interfaces.CheckpointStore
	notesCheckpoints      interfaces.CheckpointStore
	closers               []func() error
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logging.Default().Warn("failed to close backend", "error", err)
		}
	}
}

// newBackend opens note and checkpoint stores
func (cfg *config) newBackend(ctx context.Context) (*backend, error) {
	switch cfg.backend {
	case backendLocal, "":
		return cfg.newLocalBackend()
	case backendCloud:
		return cfg.newCloudBackend(ctx)
	default:
		return nil, goerr.New("unsupported backend",
			goerr.V("backend", cfg.backend),
			goerr.V("supported", []string{backendLocal, backendCloud}))
	}
}

func (cfg *config) newLocalBackend() (*backend, error) {
	b := &backend{}

	notes, err := repository.NewSQLiteNotes(filepath.Join(cfg.dataDir, "notes.db"))
	if err != nil {
		return nil, err
	}
	b.notes = notes
	b.closers = append(b.closers, notes.Close)

	supervisorCP, err := repository.NewSQLite(filepath.Join(cfg.dataDir, "supervisor_checkpoints.db"))
	if err != nil {
		b.Close()
		return nil, err
	}
	b.supervisorCheckpoints = supervisorCP
	b.closers = append(b.closers, supervisorCP.Close)

	notesCP, err := repository.NewSQLite(filepath.Join(cfg.dataDir, "notes_checkpoints.db"))
	if err != nil {
		b.Close()
		return nil, err
	}
	b.notesCheckpoints = notesCP
	b.closers = append(b.closers, notesCP.Close)

	return b, nil
}

func (cfg *config) newCloudBackend(ctx context.Context) (*backend, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required for cloud backend")
	}
	if cfg.bucket == "" {
		return nil, goerr.New("storage-bucket is required for cloud backend")
	}

	fs, err := repository.NewFirestore(ctx, cfg.project, cfg.database,
		repository.WithNotesCollection(cfg.notesCollection))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore repository")
	}

	storage, err := adapter.NewStorage(ctx, cfg.bucket)
	if err != nil {
		_ = fs.Close()
		return nil, goerr.Wrap(err, "failed to create storage")
	}

	// Supervisor and notes threads never share a key, so one store serves both
	checkpoints := repository.NewCloudCheckpoint(fs.Client(), storage)
	return &backend{
		notes:                 fs,
		supervisorCheckpoints: checkpoints,
		notesCheckpoints:      checkpoints,
		closers:               []func() error{fs.Close, storage.Close},
	}, nil
}

// newNoteTools builds the note tools over the backend's note store
func (cfg *config) newNoteTools(ctx context.Context, b *backend, embedder interfaces.Embedder) ([]tool.Tool, error) {
	engine, err := cfg.newPolicy(ctx)
	if err != nil {
		return nil, err
	}

	var opts []notetool.Option
	if cfg.dimension > 0 {
		opts = append(opts, notetool.WithDimension(int(cfg.dimension)))
	}
	if cfg.storeTimeout > 0 {
		opts = append(opts, notetool.WithStoreTimeout(cfg.storeTimeout))
	}
	return notetool.New(b.notes, embedder, engine, opts...).Tools(), nil
}

// runtime is everything a conversational command needs
type runtime struct {
	service *chat.Service
	backend *backend
}

func (r *runtime) Close() {
	r.backend.Close()
}

// newRuntime wires gemini, stores, policy and both agents into a chat service
func (cfg *config) newRuntime(ctx context.Context) (*runtime, error) {
	prof, err := loadProfile(cfg.profilePath)
	if err != nil {
		return nil, err
	}
	prof.applyFlags(cfg)

	gemini, err := cfg.newGemini(ctx, prof.Breaker)
	if err != nil {
		return nil, err
	}

	engine, err := cfg.newPolicy(ctx)
	if err != nil {
		return nil, err
	}

	b, err := cfg.newBackend(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := chat.New(ctx, chat.NewInput{
		Gemini:                gemini,
		NoteStore:             b.notes,
		Policy:                engine,
		SupervisorCheckpoints: b.supervisorCheckpoints,
		NotesCheckpoints:      b.notesCheckpoints,
		Supervisor:            prof.Supervisor,
		Notes:                 prof.Notes,
		StoreTimeout:          cfg.storeTimeout,
		Dimension:             int(cfg.dimension),
	})
	if err != nil {
		b.Close()
		return nil, goerr.Wrap(err, "failed to create chat service")
	}

	return &runtime{service: svc, backend: b}, nil
}
