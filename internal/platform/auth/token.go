package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Issuer signs HS256 access tokens for staff logins.
type Issuer struct {
	SigningKey []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
	Now        func() time.Time
}

// Issue returns a signed token for the given subject and its expiry.
func (i *Issuer) Issue(subject, username, tenantID string, roles []string) (string, time.Time, error) {
	if len(i.SigningKey) == 0 {
		return "", time.Time{}, fmt.Errorf("token signing key not configured")
	}
	now := time.Now()
	if i.Now != nil {
		now = i.Now()
	}
	exp := now.Add(i.TTL)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    i.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: tenantID,
		Username: username,
		Roles:    roles,
	}
	if i.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.SigningKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
