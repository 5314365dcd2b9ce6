package auth

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/lestrrat-go/jwx/jwt"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

var (
	ErrNoKeyRegistry   = errors.New("no remote key registry configured")
	ErrInvalidJWTKey   = errors.New("invalid JWT key")
	ErrTokenValidation = errors.New("token validation failed")
)

// TokenValidator verifies a bearer JWT and returns its parsed claims.
// Two implementations exist: the local symmetric validator for tokens
// minted by this service's Issuer, and the remote JWKS keystore for
// tokens minted by an external identity provider.
type TokenValidator interface {
	ValidateJWT(token string) (*jwt.Token, error)
}

// LocalJWTValidator validates JWTs signed with the shared HS256 secret
// the Issuer signs with
type LocalJWTValidator struct {
	jwtSecret []byte
}

// NewLocalJWTValidator creates a validator over the given signing key
func NewLocalJWTValidator(jwtSecret []byte) (*LocalJWTValidator, error) {
	if len(jwtSecret) == 0 {
		return nil, ErrInvalidJWTKey
	}
	return &LocalJWTValidator{
		jwtSecret: jwtSecret,
	}, nil
}

// ValidateJWT verifies the signature and standard claims of a locally
// issued token
func (v *LocalJWTValidator) ValidateJWT(token string) (*jwt.Token, error) {
	t, err := jwt.Parse(
		[]byte(token),
		jwt.WithValidate(true),
		jwt.WithVerify(jwa.HS256, v.jwtSecret),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenValidation, err)
	}
	return &t, nil
}

// RemoteKeyStore validates JWTs against a JWKS endpoint, refreshing the
// key set in the background
type RemoteKeyStore struct {
	keyStore *jwk.AutoRefresh
	uri      string
}

// NewRemoteKeyStore fetches the initial key set from the JWKS endpoint
// and keeps it refreshed for the lifetime of ctx
func NewRemoteKeyStore(ctx context.Context, uri string) (*RemoteKeyStore, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("key store URL must use HTTPS protocol")
	}

	ks := RemoteKeyStore{
		keyStore: jwk.NewAutoRefresh(ctx),
		uri:      uri,
	}
	ks.keyStore.Configure(ks.uri)

	set, err := ks.keyStore.Refresh(ctx, ks.uri)
	if err != nil {
		return nil, err
	}

	logging.LogInfofCtx(ctx, "Remote key store ready, %d keys retrieved", set.Len())

	return &ks, nil
}

// ValidateJWT verifies the token against the cached JWKS key set. The
// keystore honors HTTP cache headers, so this does not hit the keys
// endpoint per call.
func (ks *RemoteKeyStore) ValidateJWT(token string) (*jwt.Token, error) {
	if ks.keyStore == nil {
		return nil, ErrNoKeyRegistry
	}

	set, err := ks.keyStore.Fetch(context.Background(), ks.uri)
	if err != nil {
		return nil, err
	}

	t, err := jwt.Parse([]byte(token),
		jwt.WithValidate(true),
		jwt.InferAlgorithmFromKey(true),
		jwt.WithKeySet(set))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenValidation, err)
	}
	return &t, nil
}
