package admin

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/cloo-solutions/replygate/internal/config"
	"github.com/cloo-solutions/replygate/internal/database"
	"github.com/cloo-solutions/replygate/internal/index"
	"github.com/cloo-solutions/replygate/internal/openai"
	"github.com/cloo-solutions/replygate/internal/repository"
	"github.com/cloo-solutions/replygate/internal/service"
	"github.com/cloo-solutions/replygate/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	goopenai "github.com/sashabaranov/go-openai"
)

func getDBPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := database.NewPool(ctx, database.Config{
		URL:      cfg.DatabaseURL,
		MaxConns: cfg.DBMaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

// knowledgeStack is the knowledge side of the daemon, shared by serve and the
// knowledge commands so both index the same way.
type knowledgeStack struct {
	service *service.KnowledgeService
	index   service.KnowledgeIndex
}

func newKnowledgeStack(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, api *goopenai.Client) (*knowledgeStack, error) {
	ingestor, err := service.NewKnowledgeIngestor(service.ChunkConfig{
		MaxChunkSize: cfg.ChunkSize,
		Overlap:      cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid chunk configuration: %w", err)
	}

	repo := repository.NewKnowledgeRepository(pool)
	var opts []service.KnowledgeOption
	var idx service.KnowledgeIndex

	if api != nil {
		embedder := openai.NewEmbeddingClient(api, openai.EmbeddingConfig{})
		idx = index.NewVector(repo, embedder)
		opts = append(opts, service.WithEmbedder(embedder))
	} else {
		mirrored := index.NewMirrored(index.NewMemory(index.LexicalOracle{}), repo)
		n, err := mirrored.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load knowledge: %w", err)
		}
		log.Printf("knowledge: no embedding provider, lexical index loaded with %d entries", n)
		idx = mirrored
	}

	if cfg.HasS3() {
		src, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := src.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready", cfg.S3Bucket)
		opts = append(opts, service.WithDocumentSource(src))
	}

	return &knowledgeStack{
		service: service.NewKnowledgeService(ingestor, idx, opts...),
		index:   idx,
	}, nil
}

func newAPIClient(cfg *config.Config) *goopenai.Client {
	if !cfg.HasOpenAI() {
		return nil
	}
	return openai.NewAPIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
}

var errGeneratorNotConfigured = errors.New("generator not configured: REPLYGATE_OPENAI_API_KEY required")

// unconfiguredGenerator fails every request; the service reports it as a GenerationError.
type unconfiguredGenerator struct{}

func (unconfiguredGenerator) Generate(ctx context.Context, req service.GenerationRequest) (*service.GenerationResult, error) {
	return nil, errGeneratorNotConfigured
}
