// Package mocks provides in-memory implementations of the domain ports for
// service tests.
package mocks

import (
	"context"
	"strings"
	"sync"
)

// Embedder is a mock implementation of ports.Embedder.
type Embedder struct {
	mu              sync.Mutex
	EmbeddingResult []float32
	Err             error

	// Texts records every embedded text.
	Texts []string
}

// Embed returns the configured embedding or error.
func (m *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Texts = append(m.Texts, text)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.EmbeddingResult, nil
}

// EmbedBatch returns one embedding per text.
func (m *Embedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Texts = append(m.Texts, texts...)
	if m.Err != nil {
		return nil, m.Err
	}
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = m.EmbeddingResult
	}
	return result, nil
}

// PasswordHasher is a reversible stand-in for ports.PasswordHasher.
type PasswordHasher struct {
	Err error
}

// HashPassword prefixes the password.
func (h *PasswordHasher) HashPassword(_ context.Context, password string) (string, error) {
	if h.Err != nil {
		return "", h.Err
	}
	return "hashed:" + password, nil
}

// VerifyPassword compares against the prefixed form.
func (h *PasswordHasher) VerifyPassword(_ context.Context, password, encodedHash string) (bool, error) {
	if h.Err != nil {
		return false, h.Err
	}
	return strings.TrimPrefix(encodedHash, "hashed:") == password, nil
}
