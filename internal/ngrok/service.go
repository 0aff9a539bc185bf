// Package ngrok exposes the HTTP API through an ngrok endpoint so a player
// session can be driven from outside the local network.
package ngrok

import (
	"context"
	"errors"
	"fmt"

	"soundstorm/internal/config"

	"github.com/sirupsen/logrus"
	"golang.ngrok.com/ngrok/v2"
)

// ErrNoAuthToken is returned when the tunnel is enabled without a token in
// the config file or NGROK_AUTHTOKEN.
var ErrNoAuthToken = errors.New("ngrok auth token not found")

// Service owns one ngrok agent and at most one forwarding endpoint.
// A nil *Service is valid and means tunnelling is disabled.
type Service struct {
	config *config.NgrokConfig
	agent  ngrok.Agent
	tunnel ngrok.EndpointForwarder
	logger *logrus.Entry
}

// NewService returns nil, nil when the tunnel is disabled. The auth token is
// read from cfg after environment overrides have been applied.
func NewService(cfg *config.NgrokConfig, logger *logrus.Entry) (*Service, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("%w: set %s or ngrok.auth_token", ErrNoAuthToken, config.EnvNgrokAuthToken)
	}

	agent, err := ngrok.NewAgent(ngrok.WithAuthtoken(cfg.AuthToken))
	if err != nil {
		return nil, fmt.Errorf("failed to create ngrok agent: %w", err)
	}

	return &Service{
		config: cfg,
		agent:  agent,
		logger: logger.WithField("component", "ngrok"),
	}, nil
}

// StartTunnel forwards the public endpoint to localAddress.
func (s *Service) StartTunnel(ctx context.Context, localAddress string) error {
	if s == nil {
		return nil
	}

	s.logger.Info("Starting ngrok tunnel")

	tunnel, err := s.agent.Forward(ctx, ngrok.WithUpstream(localAddress), endpointOptions(s.config)...)
	if err != nil {
		return fmt.Errorf("failed to create ngrok tunnel: %w", err)
	}
	s.tunnel = tunnel

	fields := logrus.Fields{
		"public_url": tunnel.URL().String(),
		"upstream":   localAddress,
	}
	if s.config.EnableAuth {
		fields["oauth"] = s.config.AuthProvider
	}
	s.logger.WithFields(fields).Info("Ngrok tunnel active")
	return nil
}

func endpointOptions(cfg *config.NgrokConfig) []ngrok.EndpointOption {
	var opts []ngrok.EndpointOption
	if cfg.Domain != "" {
		opts = append(opts, ngrok.WithURL(cfg.Domain))
	}
	if cfg.EnableAuth {
		opts = append(opts, ngrok.WithTrafficPolicy(oauthPolicy(cfg.AuthProvider)))
	}
	return opts
}

// oauthPolicy gates every request behind the given OAuth provider.
func oauthPolicy(provider string) string {
	return fmt.Sprintf(`
on_http_request:
  - actions:
      - type: oauth
        config:
          provider: %s
`, provider)
}

// GetPublicURL returns the public URL of the tunnel, or "" when none is active.
func (s *Service) GetPublicURL() string {
	if s == nil || s.tunnel == nil {
		return ""
	}
	return s.tunnel.URL().String()
}

// Stop closes the tunnel.
func (s *Service) Stop() error {
	if s == nil || s.tunnel == nil {
		return nil
	}
	s.logger.Info("Stopping ngrok tunnel")
	return s.tunnel.Close()
}

// Wait blocks until the tunnel closes.
func (s *Service) Wait() {
	if s == nil || s.tunnel == nil {
		return
	}
	<-s.tunnel.Done()
}
