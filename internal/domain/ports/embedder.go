package ports

import "context"

// Embedder turns record summaries into vectors for the similarity index.
type Embedder interface {
	// Embed returns the embedding of one text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// PasswordHasher derives and checks password hashes.
type PasswordHasher interface {
	HashPassword(ctx context.Context, password string) (string, error)
	VerifyPassword(ctx context.Context, password, encodedHash string) (bool, error)
}
