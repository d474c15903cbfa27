// Package cmd provides the codesearch CLI commands.
package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opencodesearch/codesearch/internal/config"
	"github.com/opencodesearch/codesearch/internal/embed"
	"github.com/opencodesearch/codesearch/internal/logging"
	"github.com/opencodesearch/codesearch/internal/snapshot"
	"github.com/opencodesearch/codesearch/internal/status"
	"github.com/opencodesearch/codesearch/internal/vectorstore"
	"github.com/opencodesearch/codesearch/pkg/codesearch"
	"github.com/opencodesearch/codesearch/pkg/version"
)

// NewRootCmd creates the root command for the codesearch CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "codesearch",
		Short:   "Hybrid BM25 + semantic search over a codebase",
		Version: version.Version,
	}
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newReindexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newClearCmd())
	return cmd
}

// newEngine loads layered configuration for dir and wires an Engine from it.
// The store backend is one of "hnsw" (default, in-process), "qdrant" or
// "milvus" (networked), or "faiss" (in-process, built on go-faiss); any
// other value is an error.
func newEngine(ctx context.Context, dir string) (*codesearch.Engine, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	provider := embed.ProviderStatic
	if cfg.Embeddings.Provider != "" {
		provider = embed.ParseProvider(cfg.Embeddings.Provider)
	}
	embedder, err := embed.NewEmbedder(ctx, provider, cfg.Embeddings.Model)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	dim := cfg.Embeddings.Dimensions
	if dim <= 0 {
		dim = embedder.Dimensions()
	}
	if dim <= 0 {
		v, err := embedder.Embed(ctx, "dimension probe")
		if err != nil {
			return nil, fmt.Errorf("probe embedding dimension: %w", err)
		}
		dim = len(v)
	}

	store, err := newStore(cfg, dim)
	if err != nil {
		return nil, err
	}

	snapshots := snapshot.NewStore(cfg.Store.DataDir + "/snapshots")
	reg := status.NewRegistry(cfg.Store.DataDir + "/status")
	reg.Hydrate()

	return codesearch.New(embedder, store, snapshots, reg), nil
}

func newStore(cfg *config.Config, dim int) (vectorstore.VectorStore, error) {
	switch strings.ToLower(cfg.Store.Backend) {
	case "", "hnsw":
		return vectorstore.NewHNSWStore(vectorstore.HNSWConfig{Dimensions: dim}), nil
	case "qdrant":
		host, port := parseHostPort(cfg.Store.Endpoint, 6334)
		return vectorstore.NewQdrantStore(vectorstore.QdrantConfig{Host: host, Port: port})
	case "milvus":
		return vectorstore.NewMilvusStore(context.Background(), cfg.Store.Endpoint)
	case "faiss":
		return vectorstore.NewFaissStore(dim), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

func parseHostPort(endpoint string, defaultPort int) (string, int) {
	if endpoint == "" {
		return "localhost", defaultPort
	}
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host := u.Hostname()
		if p, err := strconv.Atoi(u.Port()); err == nil && p > 0 {
			return host, p
		}
		return host, defaultPort
	}
	if host, portStr, err := splitHostPort(endpoint); err == nil {
		if p, err := strconv.Atoi(portStr); err == nil {
			return host, p
		}
	}
	return endpoint, defaultPort
}

func splitHostPort(s string) (string, string, error) {
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", "", fmt.Errorf("no port in %q", s)
	}
	return s[:idx], s[idx+1:], nil
}

func setupLogging() func() {
	cleanup, err := logging.SetupDefault()
	if err != nil {
		return func() {}
	}
	return cleanup
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
