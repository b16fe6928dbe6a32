package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/hubenschmidt/go-retrieve/chunker"
	"github.com/hubenschmidt/go-retrieve/rag"
	"github.com/hubenschmidt/go-retrieve/vector"
)

func newChunkCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "chunk <file>",
		Short: "Print the chunks a file would be split into",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			ch, err := chunker.New(cfg.Chunker)
			if err != nil {
				return err
			}
			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			out := cmd.OutOrStdout()
			for i, c := range ch.SplitText(string(text)) {
				fmt.Fprintf(out, "--- chunk %d (%d runes) ---\n%s\n\n", i, utf8.RuneCountInString(c), c)
			}
			return nil
		},
	}
}

func newIndexCommand(opts *options) *cobra.Command {
	var (
		id   string
		meta []string
	)

	cmd := &cobra.Command{
		Use:   "index <file>",
		Short: "Chunk, embed and store a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseKeyValues(meta)
			if err != nil {
				return err
			}
			text, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}
			if id == "" {
				id = filepath.Base(args[0])
			}
			if _, ok := metadata["source"]; !ok {
				metadata["source"] = args[0]
			}

			s, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer s.close()

			ix, err := s.indexer()
			if err != nil {
				return err
			}
			ids, err := ix.Index(cmd.Context(), id, string(text), metadata)
			if err != nil {
				return err
			}
			if err := s.persist(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks from %s as %q\n", len(ids), args[0], id)
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "base id for the chunks (defaults to the file name)")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value attached to every chunk (repeatable)")
	return cmd
}

func newSearchCommand(opts *options) *cobra.Command {
	var (
		topK    int
		metric  string
		filters []string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find the chunks most similar to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := parseKeyValues(filters)
			if err != nil {
				return err
			}
			m := vector.Metric(metric)
			if m != vector.MetricCosine && m != vector.MetricEuclidean {
				return fmt.Errorf("unknown metric %q", metric)
			}

			s, err := opts.open(cmd, true)
			if err != nil {
				return err
			}
			defer s.close()

			ix, err := s.indexer()
			if err != nil {
				return err
			}
			results, err := ix.Query(cmd.Context(), strings.Join(args, " "), topK, vector.SearchOptions{
				Filter: filter,
				Metric: m,
			})
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), rag.FormatResults(results))
			return nil
		},
	}

	cmd.Flags().IntVarP(&topK, "top-k", "k", rag.DefaultTopK, "number of results")
	cmd.Flags().StringVar(&metric, "metric", string(vector.MetricCosine), "similarity metric: cosine or euclidean")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "metadata key=value every result must match (repeatable)")
	return cmd
}

func newDeleteCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete stored chunks by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.store.Delete(cmd.Context(), args); err != nil {
				return err
			}
			if err := s.persist(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d ids\n", len(args))
			return nil
		},
	}
}

func newExportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "export <file>",
		Short: "Write the whole store to a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			token, err := s.store.Serialize(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeFile(args[0], token); err != nil {
				return fmt.Errorf("write snapshot: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported store to %s\n", args[0])
			return nil
		},
	}
}

func newImportCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the store contents with a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read snapshot: %w", err)
			}

			s, err := opts.open(cmd, false)
			if err != nil {
				return err
			}
			defer s.close()

			if err := s.store.Deserialize(cmd.Context(), string(data)); err != nil {
				return err
			}
			if err := s.persist(cmd.Context()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s\n", args[0])
			return nil
		},
	}
}
