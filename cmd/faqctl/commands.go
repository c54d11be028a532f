package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/yanqian/voice-faq/internal/domain/evaluation"
	"github.com/yanqian/voice-faq/internal/domain/ingest"
	"github.com/yanqian/voice-faq/internal/infra/assistantclient"
	mcpiface "github.com/yanqian/voice-faq/internal/interface/mcp"
)

func newEmbedCmd(opts *rootOptions) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "embed",
		Short: "Embed scraped FAQ records into a vectors artifact",
		Example: `  faqctl embed --input faq_data.json --output faq_vectors.json
  faqctl embed --input faq_export.txt --output faq_vectors.json --deterministic`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			records, err := readRecords(cmd, rt, input)
			if err != nil {
				return err
			}
			bar, progress := newProgressBar(cmd.ErrOrStderr(), opts.quiet, len(records), "Embedding")
			entries, report, err := rt.ingestService().Embed(ctx, records, progress)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			data, err := ingest.EncodeVectors(entries)
			if err != nil {
				return err
			}
			if err := rt.artifacts.Put(ctx, output, data); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "embedded %d entries (%d skipped, %d duplicates) into %s\n", report.Entries, report.Skipped, report.Duplicates, output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "faq_data.json", "records artifact (.json or .txt)")
	cmd.Flags().StringVarP(&output, "output", "o", "faq_vectors.json", "vectors artifact to write")
	return cmd
}

func newUploadCmd(opts *rootOptions) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:     "upload",
		Short:   "Upsert a vectors artifact into the knowledge store",
		Example: `  faqctl upload --input faq_vectors.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			data, err := rt.artifacts.Get(ctx, input)
			if err != nil {
				return fmt.Errorf("read %s: %w", input, err)
			}
			entries, err := ingest.DecodeVectors(data)
			if err != nil {
				return err
			}
			store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			bar, progress := newProgressBar(cmd.ErrOrStderr(), opts.quiet, len(entries), "Uploading")
			n, err := rt.ingestService().Upload(ctx, store, entries, progress)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			total, err := store.Count(ctx)
			if err != nil {
				rt.logger.Warn("knowledge store count failed", "error", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "upserted %d entries into %s (store now holds %d)\n", n, rt.cfg.Knowledge.Backend, total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "faq_vectors.json", "vectors artifact to upload")
	return cmd
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:     "ingest",
		Short:   "Embed records and upsert them into the knowledge store in one pass",
		Example: `  faqctl ingest --input faq_data.json --output faq_vectors.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			records, err := readRecords(cmd, rt, input)
			if err != nil {
				return err
			}
			store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			svc := rt.ingestService()
			bar, progress := newProgressBar(cmd.ErrOrStderr(), opts.quiet, len(records), "Embedding")
			entries, report, err := svc.Embed(ctx, records, progress)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			if output != "" {
				data, err := ingest.EncodeVectors(entries)
				if err != nil {
					return err
				}
				if err := rt.artifacts.Put(ctx, output, data); err != nil {
					return fmt.Errorf("write %s: %w", output, err)
				}
			}
			bar, progress = newProgressBar(cmd.ErrOrStderr(), opts.quiet, len(entries), "Uploading")
			report.Upserted, err = svc.Upload(ctx, store, entries, progress)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			return printJSON(cmd, report)
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "faq_data.json", "records artifact (.json or .txt)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also write the vectors artifact")
	return cmd
}

func newSearchCmd(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Show the FAQ entries closest to a query",
		Example: `  faqctl search "How do I make a payment?" --limit 5`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			query := strings.Join(args, " ")
			matches, err := rt.faqService(store).Search(ctx, query, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(matches) == 0 {
				fmt.Fprintln(out, "no matches")
				return nil
			}
			for i, m := range matches {
				fmt.Fprintf(out, "%d. [%.4f] %s\n", i+1, m.Score, m.Metadata.Question)
				if m.Metadata.Section != "" {
					fmt.Fprintf(out, "   section: %s\n", m.Metadata.Section)
				}
				fmt.Fprintf(out, "   %s\n", m.Metadata.Answer)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "k", 3, "number of matches")
	return cmd
}

func newEvaluateCmd(opts *rootOptions) *cobra.Command {
	var (
		dataset, output, baseURL string
		delay, timeout           time.Duration
	)
	cmd := &cobra.Command{
		Use:     "evaluate",
		Short:   "Score a running assistant against an evaluation dataset",
		Example: `  faqctl evaluate --dataset evaluation_dataset.json --url http://localhost:8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.loadArtifactsOnly()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			data, err := rt.artifacts.Get(ctx, dataset)
			if err != nil {
				return fmt.Errorf("read %s: %w", dataset, err)
			}
			ds, err := evaluation.ParseDataset(data)
			if err != nil {
				return err
			}
			client, err := assistantclient.New(baseURL, timeout)
			if err != nil {
				return err
			}
			bar, progress := newProgressBar(cmd.ErrOrStderr(), opts.quiet, len(ds.Questions), "Evaluating")
			report, err := evaluation.NewRunner(client, delay, rt.logger).Run(ctx, ds, progress)
			_ = bar.Finish()
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("evaluation_report_%s.json", time.Now().UTC().Format("20060102_150405"))
			}
			body, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			if err := rt.artifacts.Put(ctx, output, body); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			s := report.Summary
			fmt.Fprintf(cmd.OutOrStdout(), "questions: %d, successful: %d (%s), overall: %.2f/5, report: %s\n",
				s.TotalQuestions, s.SuccessfulQuestions, s.SuccessRate, s.AverageScores.Overall, output)
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "evaluation_dataset.json", "evaluation dataset artifact")
	cmd.Flags().StringVarP(&output, "output", "o", "", "report artifact (default evaluation_report_<timestamp>.json)")
	cmd.Flags().StringVar(&baseURL, "url", "http://localhost:8080", "assistant base URL")
	cmd.Flags().DurationVar(&delay, "delay", 2*time.Second, "pause between questions")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "per-question request timeout")
	return cmd
}

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve answer_question and search_faq over MCP stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := rt.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			srv := mcpiface.NewServer(rt.faqService(store), version, rt.logger)
			rt.logger.Info("mcp server started", "transport", "stdio")
			err = server.NewStdioServer(srv).Listen(ctx, os.Stdin, os.Stdout)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

// loadArtifactsOnly is enough for commands that never embed, such as evaluate.
func (o *rootOptions) loadArtifactsOnly() (*runtime, error) {
	det := *o
	det.deterministic = true
	return det.load()
}

func readRecords(cmd *cobra.Command, rt *runtime, name string) ([]ingest.Record, error) {
	data, err := rt.artifacts.Get(cmd.Context(), name)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	records, err := ingest.ParseRecords(name, data, rt.cfg.Ingest.SourceURL)
	if err != nil {
		return nil, err
	}
	rt.logger.Info("records loaded", "artifact", name, "count", len(records))
	return records, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
