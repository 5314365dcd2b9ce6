package client

import (
	"time"

	"github.com/pkg/errors"

	"github.com/fikriaf/ordo-backend/pkg/config"
	"github.com/fikriaf/ordo-backend/pkg/mcp/protocol"
	"github.com/fikriaf/ordo-backend/pkg/mcp/transport"
)

// Factory creates tool server clients based on configuration
type Factory struct {
	clientName    string
	clientVersion string
	timeout       time.Duration
}

// NewFactory creates a new client factory
func NewFactory(clientName, clientVersion string, timeout time.Duration) *Factory {
	return &Factory{
		clientName:    clientName,
		clientVersion: clientVersion,
		timeout:       timeout,
	}
}

// CreateClient creates a new client based on server configuration
func (f *Factory) CreateClient(serverConfig config.ToolServerConfig) (*Client, error) {
	if serverConfig.URL == "" {
		return nil, errors.Errorf("tool server %s has no URL", serverConfig.ID)
	}

	transportCfg := transport.Config{
		URL:           serverConfig.URL,
		Headers:       serverConfig.Headers,
		Timeout:       f.timeout,
		ForwardBearer: serverConfig.ForwardBearer,
	}

	var trans transport.Transport
	var err error

	switch transport.TransportType(serverConfig.Type) {
	case transport.TransportTypeHTTP:
		trans, err = transport.NewHTTPTransport(transportCfg)
	case transport.TransportTypeSSE:
		trans, err = transport.NewSSETransport(transportCfg)
	default:
		return nil, errors.Errorf("unsupported transport type: %s", serverConfig.Type)
	}

	if err != nil {
		return nil, errors.Wrapf(err, "failed to create transport for server %s", serverConfig.ID)
	}

	clientConfig := ClientConfig{
		ClientName:    f.clientName,
		ClientVersion: f.clientVersion,
		Capabilities:  protocol.ClientCapabilities{},
	}

	return NewClient(trans, clientConfig), nil
}
