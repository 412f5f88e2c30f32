package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satriahrh/suara/domain/entities"
	"github.com/satriahrh/suara/internal/metrics"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ingest files and answer one question from them",
	Long: `Loads the given files into a fresh knowledge base and prints the answer
to the question together with the sources it was grounded on.

Examples:
  suara ask --file faq.txt "When do you open?"
  suara ask -f menu.md -f hours.md "Is there a vegan option?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var askFiles []string

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringSliceVarP(&askFiles, "file", "f", nil, "Text file to ingest (repeatable)")
	_ = askCmd.MarkFlagRequired("file")
}

func runAsk(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}

	docs, err := readDocuments(askFiles)
	if err != nil {
		return err
	}

	knowledge, err := buildKnowledge(cmd.Context(), cfg, metrics.New(nil), logger)
	if err != nil {
		return err
	}
	if err := knowledge.Ingest(cmd.Context(), docs); err != nil {
		return err
	}

	answer, err := knowledge.Query(cmd.Context(), strings.Join(args, " "))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Answer)
	fmt.Fprintln(out)
	for _, source := range answer.Sources {
		fmt.Fprintf(out, "[%s %d%%] %v\n", source.SearchType, source.Relevance, source.Metadata["source"])
	}
	return nil
}

func readDocuments(paths []string) ([]entities.Document, error) {
	docs := make([]entities.Document, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		docs = append(docs, entities.Document{
			Text:     string(data),
			Metadata: map[string]any{"source": filepath.Base(path)},
		})
	}
	return docs, nil
}
