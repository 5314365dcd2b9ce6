package handlers

import (
	"context"

	"github.com/d4l-data4life/go-svc/pkg/logging"
)

// serviceAuthLogger satisfies the logger interface of go-svc's
// ServiceSecretAuthenticator, which guards the internal user endpoints
type serviceAuthLogger struct{}

// NewServiceAuthLogger builds the logger handed to the authenticator
func NewServiceAuthLogger() *serviceAuthLogger {
	return &serviceAuthLogger{}
}

// ErrGeneric logs a failed service-secret check and passes the error on
func (l *serviceAuthLogger) ErrGeneric(ctx context.Context, err error) error {
	logging.LogErrorf(err, "Internal endpoint authentication failed")
	return err
}
