package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed tokens and bad signatures.
	ErrInvalidToken = errors.New("invalid download token")
	// ErrTokenExpired is returned for well-signed tokens past their expiry.
	ErrTokenExpired = errors.New("download token expired")
)

// Token is a signed, expiring reference to a stored export file.
type Token struct {
	JobID     string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues and verifies HMAC-SHA256 download tokens of the form
// jobID.expiryUnix.base64(path).signature.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs a token for the job's stored file.
func (s *SignedURLSigner) Generate(jobID, relPath string) (string, time.Time, error) {
	if jobID == "" || relPath == "" {
		return "", time.Time{}, errors.New("jobID and relPath required")
	}
	if strings.Contains(jobID, ".") {
		return "", time.Time{}, fmt.Errorf("jobID %q must not contain dots", jobID)
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{jobID, ts, encodedPath, s.sign(jobID, ts, encodedPath)}, ".")
	return token, expiresAt, nil
}

// Parse verifies a token. Expired tokens fail with ErrTokenExpired unless
// allowExpired is set.
func (s *SignedURLSigner) Parse(token string, allowExpired bool) (Token, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Token{}, ErrInvalidToken
	}
	jobID, ts, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(jobID, ts, encodedPath)), []byte(signature)) {
		return Token{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Token{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return Token{}, ErrInvalidToken
	}

	parsed := Token{JobID: jobID, Path: string(rawPath), ExpiresAt: time.Unix(expUnix, 0)}
	if !allowExpired && s.now().After(parsed.ExpiresAt) {
		return parsed, ErrTokenExpired
	}
	return parsed, nil
}

func (s *SignedURLSigner) sign(jobID, ts, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(jobID + "|" + ts + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
