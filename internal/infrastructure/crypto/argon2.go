// Package crypto hashes account passwords with Argon2id.
package crypto

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost factors.
type Params struct {
	Memory      uint32 // KiB
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams suit an interactive CLI login.
var DefaultParams = Params{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	SaltLength:  16,
	KeyLength:   32,
}

var errMalformedHash = errors.New("malformed password hash")

// Argon2Hasher implements ports.PasswordHasher. Hashes are stored in PHC
// string format so parameters can change without invalidating old hashes.
type Argon2Hasher struct {
	params Params
}

// NewArgon2Hasher creates a hasher. A zero Params selects DefaultParams.
func NewArgon2Hasher(p Params) *Argon2Hasher {
	if p == (Params{}) {
		p = DefaultParams
	}
	return &Argon2Hasher{params: p}
}

// HashPassword derives a salted hash of password.
func (h *Argon2Hasher) HashPassword(_ context.Context, password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches encodedHash.
func (h *Argon2Hasher) VerifyPassword(_ context.Context, password, encodedHash string) (bool, error) {
	p, salt, key, err := decodeHash(encodedHash)
	if err != nil {
		return false, err
	}

	other := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, p.KeyLength)
	return subtle.ConstantTimeCompare(key, other) == 1, nil
}

// NeedsRehash reports whether encodedHash was made with other parameters.
func (h *Argon2Hasher) NeedsRehash(encodedHash string) bool {
	p, salt, _, err := decodeHash(encodedHash)
	if err != nil {
		return true
	}
	p.SaltLength = uint32(len(salt))
	return p != h.params
}

// decodeHash parses "$argon2id$v=19$m=65536,t=3,p=2$<salt>$<key>".
func decodeHash(encodedHash string) (Params, []byte, []byte, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return Params{}, nil, nil, errMalformedHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: %v", errMalformedHash, err)
	}
	if version != argon2.Version {
		return Params{}, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}

	var p Params
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: %v", errMalformedHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: salt: %v", errMalformedHash, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Params{}, nil, nil, fmt.Errorf("%w: key: %v", errMalformedHash, err)
	}
	p.KeyLength = uint32(len(key))
	return p, salt, key, nil
}
