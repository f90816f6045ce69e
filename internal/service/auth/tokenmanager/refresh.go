package tokenmanager

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/nkiryanov/authservice/internal/models"
)

// 256 bits of entropy
const refreshTokenBytesLen = 32

// RefreshGenerator produces opaque random refresh tokens
type RefreshGenerator struct {
	ttl    time.Duration
	random io.Reader
}

func NewRefreshGenerator(ttl time.Duration) (*RefreshGenerator, error) {
	if ttl <= 0 {
		return nil, configError("refresh token ttl must be positive, got %s", ttl)
	}

	return &RefreshGenerator{ttl: ttl, random: rand.Reader}, nil
}

func (g *RefreshGenerator) Generate(now time.Time) (models.IssuedToken, error) {
	b := make([]byte, refreshTokenBytesLen)
	_, err := io.ReadFull(g.random, b)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while generate refresh token. Err: %w", err)
	}

	return models.IssuedToken{
		Value:     base64.RawURLEncoding.EncodeToString(b),
		ExpiresAt: now.Add(g.ttl),
	}, nil
}

// Digest of refresh token which is stored instead of the token itself
func HashRefresh(refresh string) string {
	sum := sha256.Sum256([]byte(refresh))
	return hex.EncodeToString(sum[:])
}
