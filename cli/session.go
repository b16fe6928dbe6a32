package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/go-retrieve/chunker"
	"github.com/hubenschmidt/go-retrieve/config"
	"github.com/hubenschmidt/go-retrieve/embedding"
	"github.com/hubenschmidt/go-retrieve/logging"
	"github.com/hubenschmidt/go-retrieve/rag"
	"github.com/hubenschmidt/go-retrieve/vector"
)

// session is the state one command runs against.
type session struct {
	cfg      *config.Config
	log      *slog.Logger
	embedder embedding.Embedder
	store    vector.Store
	snapshot string
}

// loadConfig reads the config file and applies flag overrides.
func (o *options) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.dsn != "" {
		cfg.Store.DSN = o.dsn
	}
	if o.snapshot != "" {
		cfg.Store.Snapshot = o.snapshot
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open builds the logger and store, plus the embedder when withEmbedder is
// set. A memory store is restored from its snapshot file.
func (o *options) open(cmd *cobra.Command, withEmbedder bool) (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, log: logger}

	dim := cfg.EmbeddingDimension()
	if withEmbedder {
		s.embedder, err = embedding.New(cfg.EmbeddingConfig())
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		if d := s.embedder.Dimension(); d > 0 {
			dim = d
		}
	}

	s.store, err = vector.Open(storeConfig(cfg, dim, withEmbedder, logger))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	if vector.Backend(cfg.Store.DSN) == "memory" {
		s.snapshot = cfg.Store.Snapshot
		if err := s.restore(cmd.Context()); err != nil {
			s.store.Close()
			return nil, err
		}
	}

	logger.Debug("session opened", slog.String("backend", vector.Backend(cfg.Store.DSN)))
	return s, nil
}

// storeConfig resolves the store settings for a command. Commands that do
// not embed skip schema setup when no width is known and work on the
// existing table.
func storeConfig(cfg *config.Config, dim int, withEmbedder bool, logger *slog.Logger) vector.OpenConfig {
	openCfg := cfg.OpenConfig(dim, logger)
	if openCfg.Dimension == 0 && !withEmbedder {
		openCfg.Setup = false
	}
	return openCfg
}

func (s *session) indexer() (*rag.Indexer, error) {
	ch, err := chunker.New(s.cfg.Chunker)
	if err != nil {
		return nil, err
	}
	return rag.NewIndexer(s.store, s.embedder, ch, s.log), nil
}

func (s *session) restore(ctx context.Context) error {
	if s.snapshot == "" {
		return nil
	}
	data, err := os.ReadFile(s.snapshot)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if err := s.store.Deserialize(ctx, string(data)); err != nil {
		return fmt.Errorf("restore snapshot %s: %w", s.snapshot, err)
	}
	return nil
}

// persist writes the memory store back to its snapshot file.
func (s *session) persist(ctx context.Context) error {
	if s.snapshot == "" {
		return nil
	}
	token, err := s.store.Serialize(ctx)
	if err != nil {
		return err
	}
	return writeFile(s.snapshot, token)
}

func (s *session) close() {
	if err := s.store.Close(); err != nil {
		s.log.Warn("close store", slog.Any("error", err))
	}
}

func writeFile(path, data string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(data), 0o644)
}
