package ingest

import "strings"

const (
	chunkSize    = 500
	chunkOverlap = 100
)

// ChunkText splits text into fixed-size character windows with overlap so
// sentences split at a boundary still co-occur in one chunk. Windows are
// measured in runes, never bytes, so a boundary cannot split a multi-byte
// character. Whitespace-only chunks are dropped.
func ChunkText(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := chunkSize - chunkOverlap
	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunk := strings.TrimSpace(string(runes[start:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}
