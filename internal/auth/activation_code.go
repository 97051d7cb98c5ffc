package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

type ActivationCodeService struct {
	ttl time.Duration
}

func NewActivationCodeService(ttl time.Duration) *ActivationCodeService {
	return &ActivationCodeService{ttl: ttl}
}

// GenerateCode creates a 6-digit zero-padded numeric code using crypto/rand
func (s *ActivationCodeService) GenerateCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generating random code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// ExpiresAt returns when a newly created code should expire
func (s *ActivationCodeService) ExpiresAt() time.Time {
	return time.Now().Add(s.ttl)
}

func (s *ActivationCodeService) TTL() time.Duration {
	return s.ttl
}
