package service

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/cloo-solutions/replygate/internal/domain"
)

// ChunkConfig controls how knowledge content is split for retrieval.
type ChunkConfig struct {
	MaxChunkSize int
	Overlap      int
}

// DefaultChunkConfig provides the default window and overlap, in runes.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChunkSize: 2000,
		Overlap:      200,
	}
}

// Validate rejects configurations whose windows could never advance.
func (c ChunkConfig) Validate() error {
	if c.MaxChunkSize <= 0 {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidChunkConfig.Message,
			fmt.Errorf("max chunk size must be positive, got %d", c.MaxChunkSize))
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChunkSize {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrInvalidChunkConfig.Message,
			fmt.Errorf("overlap must be within [0,%d), got %d", c.MaxChunkSize, c.Overlap))
	}
	return nil
}

var (
	horizontalSpace = regexp.MustCompile(`[^\S\n]+`)
	spaceAroundNL   = regexp.MustCompile(` ?\n ?`)
	manyNewlines    = regexp.MustCompile(`\n{3,}`)
)

// CleanText normalizes raw document text before chunking.
func CleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceAroundNL.ReplaceAllString(text, "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// KnowledgeIngestor turns raw document text into chunk texts.
type KnowledgeIngestor struct {
	cfg ChunkConfig
}

// NewKnowledgeIngestor creates an ingestor, failing on a config that cannot make progress.
func NewKnowledgeIngestor(cfg ChunkConfig) (*KnowledgeIngestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &KnowledgeIngestor{cfg: cfg}, nil
}

// Config returns the chunking configuration in use.
func (i *KnowledgeIngestor) Config() ChunkConfig {
	return i.cfg
}

// Ingest validates and cleans rawText and returns its chunks.
func (i *KnowledgeIngestor) Ingest(rawText string) ([]string, error) {
	if !utf8.ValidString(rawText) {
		return nil, domain.NewParseError("document text is not valid UTF-8", nil)
	}
	if strings.ContainsRune(rawText, 0) {
		return nil, domain.NewParseError("document text contains NUL bytes", nil)
	}

	clean := CleanText(rawText)
	if clean == "" {
		return nil, domain.NewParseError("document has no text content", nil)
	}

	return chunkText(clean, i.cfg), nil
}

func chunkText(text string, cfg ChunkConfig) []string {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}
	if cfg.Validate() != nil {
		cfg = DefaultChunkConfig()
	}
	runes := []rune(clean)
	if len(runes) <= cfg.MaxChunkSize {
		return []string{clean}
	}

	chunks := make([]string, 0, len(runes)/(cfg.MaxChunkSize-cfg.Overlap)+1)
	start := 0
	for start < len(runes) {
		end := start + cfg.MaxChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		if end < len(runes) {
			half := start + cfg.MaxChunkSize/2
			for i := end - 1; i > half; i-- {
				if isSentenceBoundary(runes[i]) {
					end = i + 1
					break
				}
			}
		}

		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(runes) {
			break
		}

		nextStart := end - cfg.Overlap
		if nextStart <= start {
			nextStart = end
		}
		start = nextStart
	}

	return chunks
}

func isSentenceBoundary(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}
