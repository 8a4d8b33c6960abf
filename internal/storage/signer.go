package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Signer generates and validates expiring download tokens for FileStore keys.
type Signer struct {
	secret []byte
	now    func() time.Time
}

func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret), now: time.Now}
}

// Sign creates a token binding key to an expiry instant.
func (s *Signer) Sign(key string, expiry time.Time) string {
	payload := fmt.Sprintf("%s|%d", key, expiry.Unix())
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." + s.mac([]byte(payload))
}

// Verify validates a token and returns the key it was issued for.
func (s *Signer) Verify(token string) (string, error) {
	encoded, sig, ok := strings.Cut(token, ".")
	if !ok {
		return "", errors.New("invalid token format")
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", errors.New("invalid token encoding")
	}
	if !hmac.Equal([]byte(sig), []byte(s.mac(payload))) {
		return "", errors.New("invalid signature")
	}

	idx := strings.LastIndexByte(string(payload), '|')
	if idx <= 0 {
		return "", errors.New("invalid payload")
	}
	key := string(payload[:idx])
	expiryUnix, err := strconv.ParseInt(string(payload[idx+1:]), 10, 64)
	if err != nil {
		return "", errors.New("invalid expiry")
	}
	if s.now().Unix() > expiryUnix {
		return "", errors.New("token expired")
	}
	return key, nil
}

func (s *Signer) mac(payload []byte) string {
	m := hmac.New(sha256.New, s.secret)
	m.Write(payload)
	return base64.RawURLEncoding.EncodeToString(m.Sum(nil))
}
