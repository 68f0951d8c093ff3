package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// WorkerTokenPrefix identifies MoonMind worker tokens in logs-safe form.
const WorkerTokenPrefix = "mmwt_"

const workerTokenRandomBytes = 24

var workerTokenPattern = regexp.MustCompile(`^mmwt_[0-9a-f]{48}$`)

// MintWorkerToken generates a new worker bearer token. The raw token is shown
// to the caller exactly once; only the hash is stored.
func MintWorkerToken() (raw string, hash string, err error) {
	buf := make([]byte, workerTokenRandomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("failed to generate token: %w", err)
	}
	raw = WorkerTokenPrefix + hex.EncodeToString(buf)
	return raw, HashWorkerToken(raw), nil
}

// HashWorkerToken computes the storage form of a raw token: "sha256:<hex>".
func HashWorkerToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return "sha256:" + hex.EncodeToString(sum[:])
}

// LooksLikeWorkerToken reports whether a presented credential has the
// mmwt_<48 hex> shape. Malformed credentials are rejected before any lookup.
func LooksLikeWorkerToken(raw string) bool {
	return workerTokenPattern.MatchString(strings.TrimSpace(raw))
}

// VerifyTokenHash compares a raw token against a stored hash in constant time.
func VerifyTokenHash(raw, storedHash string) bool {
	computed := HashWorkerToken(raw)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(storedHash)) == 1
}
