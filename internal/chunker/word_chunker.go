package chunker

import (
	"errors"
	"fmt"
	"strings"

	"levi/internal/domain"
)

// ErrInvalidConfiguration is returned when the window parameters would not advance.
var ErrInvalidConfiguration = errors.New("chunker: invalid configuration")

// WordChunker splits text into overlapping windows of whitespace-separated words.
type WordChunker struct {
	maxWords int
	overlap  int
}

// NewWordChunker validates the window parameters. maxWords must be greater than
// overlap and overlap must not be negative, otherwise the stride would be zero or negative.
func NewWordChunker(maxWords, overlap int) (*WordChunker, error) {
	if overlap < 0 || maxWords <= overlap {
		return nil, fmt.Errorf("%w: overlap must be >= 0 and < max_words (max_words=%d, overlap=%d)",
			ErrInvalidConfiguration, maxWords, overlap)
	}
	return &WordChunker{maxWords: maxWords, overlap: overlap}, nil
}

// Chunk splits text into windows [start, start+maxWords) clipped to the word count,
// advancing start by maxWords-overlap until it passes the last word.
func (c *WordChunker) Chunk(text string) ([]domain.Chunk, error) {
	return Split(text, c.maxWords, c.overlap)
}

// Split is the stateless form of WordChunker.Chunk.
func Split(text string, maxWords, overlap int) ([]domain.Chunk, error) {
	if overlap < 0 || maxWords <= overlap {
		return nil, fmt.Errorf("%w: overlap must be >= 0 and < max_words (max_words=%d, overlap=%d)",
			ErrInvalidConfiguration, maxWords, overlap)
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return []domain.Chunk{}, nil
	}
	stride := maxWords - overlap
	chunks := make([]domain.Chunk, 0, len(words)/stride+1)
	for start := 0; start < len(words); start += stride {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, domain.Chunk{
			Index: len(chunks),
			Text:  strings.Join(words[start:end], " "),
			Start: start,
			End:   end,
		})
	}
	return chunks, nil
}
