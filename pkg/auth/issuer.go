package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwt"
)

const defaultTokenLifetime = 24 * time.Hour

// Issuer signs JWTs with the local symmetric key. Tokens it produces
// validate with LocalJWTValidator over the same secret.
type Issuer struct {
	jwtSecret []byte
	lifetime  time.Duration
}

// NewIssuer creates a token issuer with the provided signing key
func NewIssuer(jwtSecret []byte) (*Issuer, error) {
	if len(jwtSecret) == 0 {
		return nil, ErrInvalidJWTKey
	}
	return &Issuer{
		jwtSecret: jwtSecret,
		lifetime:  defaultTokenLifetime,
	}, nil
}

// IssueToken signs a new token for the given user
func (i *Issuer) IssueToken(userID uuid.UUID) (string, error) {
	now := time.Now().UTC()

	token := jwt.New()
	if err := token.Set(jwt.SubjectKey, userID.String()); err != nil {
		return "", err
	}
	if err := token.Set(jwt.IssuedAtKey, now); err != nil {
		return "", err
	}
	if err := token.Set(jwt.ExpirationKey, now.Add(i.lifetime)); err != nil {
		return "", err
	}
	if err := token.Set(jwt.IssuerKey, "ordo-backend"); err != nil {
		return "", err
	}

	signed, err := jwt.Sign(token, jwa.HS256, i.jwtSecret)
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
