package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/lk2023060901/chatbot-rag/internal/app"
	"github.com/lk2023060901/chatbot-rag/internal/knowledge/ingest"
	"github.com/spf13/cobra"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed and index every file in the knowledge base",
		RunE:  runIngest,
	}
	cmd.Flags().Bool("rebuild", true, "drop the collection before writing")
	return cmd
}

func runIngest(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	rebuild := cfg.Ingest.Rebuild
	if cmd.Flags().Changed("rebuild") {
		if rebuild, err = cmd.Flags().GetBool("rebuild"); err != nil {
			return err
		}
	}

	a, cleanup, err := app.New(cmd.Context(), cfg, log, false)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := a.Ingestor.Ingest(cmd.Context(), ingest.Options{Rebuild: rebuild})
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderReport(report, rebuild))
	return nil
}

func renderReport(r *ingest.Report, rebuild bool) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Ingest finished") + "\n")
	fmt.Fprintf(&b, "collection  %s (rebuild=%t)\n", r.Collection, rebuild)
	fmt.Fprintf(&b, "files       %d\n", r.Files)
	fmt.Fprintf(&b, "documents   %d\n", r.Documents)
	fmt.Fprintf(&b, "chunks      %d\n", r.Chunks)
	fmt.Fprintf(&b, "duration    %s", r.Duration.Round(time.Millisecond))
	for _, f := range r.Failures {
		b.WriteString("\n" + errStyle.Render("failed  "+f.Error()))
	}
	return boxStyle.Render(b.String())
}

func ClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop the vector collection (files are kept)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup(cmd)
			if err != nil {
				return err
			}
			defer log.Sync()

			a, cleanup, err := app.New(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := a.Ingestor.ClearVectorStore(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), warnStyle.Render("collection "+a.Ingestor.Collection()+" dropped"))
			return nil
		},
	}
}
