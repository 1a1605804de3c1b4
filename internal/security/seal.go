package security

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/hkdf"
)

var ErrSealInvalid = errors.New("sealed value is invalid or expired")

var sealInfo = []byte("dmclient session v1")

// Sealer protects the stored session token with Fernet. The key is derived
// from an arbitrary-length secret with HKDF-SHA256, and sealed values stop
// opening after ttl.
type Sealer struct {
	key *fernet.Key
	ttl time.Duration
}

func NewSealer(secret []byte, ttl time.Duration) (*Sealer, error) {
	if len(secret) == 0 {
		return nil, errors.New("session secret must not be empty")
	}
	if ttl <= 0 {
		return nil, errors.New("seal ttl must be positive")
	}
	var k fernet.Key
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, sealInfo), k[:]); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return &Sealer{key: &k, ttl: ttl}, nil
}

func (s *Sealer) Seal(plain string) (string, error) {
	tok, err := fernet.EncryptAndSign([]byte(plain), s.key)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}
	return string(tok), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	plain := fernet.VerifyAndDecrypt([]byte(sealed), s.ttl, []*fernet.Key{s.key})
	if plain == nil {
		return "", ErrSealInvalid
	}
	return string(plain), nil
}
