package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/yanqian/voice-faq/internal/domain/faq"
	"github.com/yanqian/voice-faq/internal/domain/ingest"
	"github.com/yanqian/voice-faq/internal/infra/artifact"
	"github.com/yanqian/voice-faq/internal/infra/config"
	"github.com/yanqian/voice-faq/internal/infra/embedder"
	"github.com/yanqian/voice-faq/internal/infra/knowledge"
	"github.com/yanqian/voice-faq/internal/infra/llm/chatgpt"
	"github.com/yanqian/voice-faq/pkg/logger"
)

var version = "dev"

type rootOptions struct {
	configPath    string
	deterministic bool
	quiet         bool
}

// runtime holds the clients shared by every subcommand.
type runtime struct {
	cfg       *config.Config
	logger    *slog.Logger
	embedder  ingest.Embedder
	chat      *chatgpt.Client
	artifacts ingest.ArtifactStore
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:          "faqctl",
		Short:        "Prepare and query the voice FAQ knowledge base",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.configPath != "" {
				return os.Setenv("CONFIG_PATH", opts.configPath)
			}
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default configs/config.yaml)")
	cmd.PersistentFlags().BoolVar(&opts.deterministic, "deterministic", false, "use the offline hash embedder instead of the embeddings API")
	cmd.PersistentFlags().BoolVarP(&opts.quiet, "quiet", "q", false, "hide progress bars")

	cmd.AddCommand(
		newEmbedCmd(opts),
		newUploadCmd(opts),
		newIngestCmd(opts),
		newSearchCmd(opts),
		newEvaluateCmd(opts),
		newMCPCmd(opts),
	)
	return cmd
}

func (o *rootOptions) load() (*runtime, error) {
	load := config.Load
	if o.deterministic {
		load = config.LoadOffline
	}
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, logger: logger.NewWithWriter(os.Stderr)}

	if o.deterministic {
		rt.embedder = embedder.NewDeterministicEmbedder(cfg.LLM.EmbeddingDimensions)
	} else {
		rt.chat, err = chatgpt.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL)
		if err != nil {
			return nil, err
		}
		counter, err := embedder.NewTokenCounter(cfg.LLM.EmbeddingModel)
		if err != nil {
			rt.logger.Warn("tiktoken encoding unavailable, estimating tokens", "error", err)
		}
		rt.embedder = embedder.NewChatGPTEmbedder(rt.chat, cfg.LLM.EmbeddingModel, cfg.Ingest.MaxBatchTokens, counter, rt.logger)
	}

	rt.artifacts, err = artifact.Open(cfg.Artifacts, rt.logger)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

func (rt *runtime) ingestService() *ingest.Service {
	return ingest.NewService(ingest.Config{
		BatchSize:   rt.cfg.Ingest.BatchSize,
		Concurrency: rt.cfg.Ingest.Concurrency,
		IDPrefix:    rt.cfg.Ingest.IDPrefix,
		Company:     rt.cfg.Ingest.Company,
		Dimensions:  rt.cfg.LLM.EmbeddingDimensions,
	}, rt.embedder, rt.logger)
}

func (rt *runtime) openStore(ctx context.Context) (knowledge.Store, error) {
	return knowledge.Open(ctx, rt.cfg.Knowledge, rt.cfg.LLM.EmbeddingDimensions, rt.logger)
}

// faqService builds the answer pipeline. Offline runs embed locally and cannot generate.
func (rt *runtime) faqService(store faq.KnowledgeStore) faq.Service {
	var client faq.ChatClient = rt.chat
	model := rt.cfg.LLM.EmbeddingModel
	if rt.chat == nil {
		client = offlineClient{embedder: rt.embedder}
		model = rt.embedder.Model()
	}
	return faq.NewService(faq.Config{
		Model:          rt.cfg.LLM.Model,
		EmbeddingModel: model,
		Temperature:    rt.cfg.LLM.Temperature,
		MaxTokens:      rt.cfg.LLM.MaxTokens,
		Prompt:         rt.cfg.FAQ.Prompt,
		FallbackAnswer: rt.cfg.FAQ.FallbackAnswer,
		TopK:           rt.cfg.FAQ.TopK,
		MaxAnswerWords: rt.cfg.FAQ.MaxAnswerWords,
	}, store, client, rt.logger)
}

var errOfflineCompletion = errors.New("chat completion is unavailable with --deterministic")

// offlineClient serves query embeddings from a local embedder.
type offlineClient struct {
	embedder ingest.Embedder
}

func (c offlineClient) CreateEmbedding(ctx context.Context, req chatgpt.EmbeddingRequest) (chatgpt.EmbeddingResponse, error) {
	var out chatgpt.EmbeddingResponse
	var texts []string
	switch in := req.Input.(type) {
	case string:
		texts = []string{in}
	case []string:
		texts = in
	default:
		return out, fmt.Errorf("unsupported embedding input %T", req.Input)
	}
	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return out, err
	}
	out.Model = c.embedder.Model()
	for i, v := range vectors {
		out.Data = append(out.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: v, Index: i})
	}
	return out, nil
}

func (offlineClient) CreateChatCompletion(context.Context, chatgpt.ChatCompletionRequest) (chatgpt.ChatCompletionResponse, error) {
	return chatgpt.ChatCompletionResponse{}, errOfflineCompletion
}

func newProgressBar(w io.Writer, quiet bool, total int, description string) (*progressbar.ProgressBar, ingest.Progress) {
	if quiet {
		w = io.Discard
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(w)
		}),
	)
	return bar, func(delta int) { _ = bar.Add(delta) }
}
