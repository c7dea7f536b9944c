// Package memory provides the embedding client used to vectorize query
// text and ingested chunks. When the embedding service is unreachable it
// degrades to a deterministic hash-derived vector so retrieval still works,
// just without semantic quality.
package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
)

// Embedder calls an Ollama-compatible embeddings endpoint.
type Embedder struct {
	host   string
	model  string
	size   int
	client *http.Client
}

// NewEmbedder creates an embedder targeting host (e.g. http://localhost:11434).
func NewEmbedder(host, model string, size int) *Embedder {
	return &Embedder{
		host:   host,
		model:  model,
		size:   size,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// VectorSize returns the configured embedding dimension.
func (e *Embedder) VectorSize() int { return e.size }

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns an embedding for text, falling back to a deterministic
// hash vector on any failure. The result always has the configured size.
func (e *Embedder) Embed(ctx context.Context, text string) []float32 {
	vec, err := e.embed(ctx, text)
	if err != nil {
		log.Printf("memory: embed failed, using hash fallback: %v", err)
		return FallbackVector(text, e.size)
	}
	return fit(vec, e.size)
}

// EmbedBatch embeds each text independently. Failed items fall back per
// item rather than failing the batch.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) [][]float32 {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.Embed(ctx, text)
	}
	return out
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.host+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embeddings endpoint returned %d", resp.StatusCode)
	}

	var er embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return nil, err
	}
	if len(er.Embedding) == 0 {
		return nil, fmt.Errorf("embeddings endpoint returned empty vector")
	}
	vec := make([]float32, len(er.Embedding))
	for i, v := range er.Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// FallbackVector derives a deterministic vector from the SHA-256 digest of
// the text: digest bytes are cycled and mapped from [0,255] to [-1,1].
func FallbackVector(text string, size int) []float32 {
	digest := sha256.Sum256([]byte(text))
	vec := make([]float32, size)
	for i := 0; i < size; i++ {
		b := digest[i%len(digest)]
		vec[i] = (float32(b)/255.0)*2 - 1
	}
	return vec
}

// fit pads with zeros or truncates so the vector matches the target size.
func fit(vec []float32, size int) []float32 {
	if len(vec) == size {
		return vec
	}
	out := make([]float32, size)
	copy(out, vec)
	return out
}
