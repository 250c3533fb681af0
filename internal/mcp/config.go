package mcp

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Transport names accepted in ServerConfig.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// DefaultCallTimeout bounds a single tools/call when the server config
// does not set one.
const DefaultCallTimeout = 30 * time.Second

// DefaultDiscoveryTimeout bounds connecting to a server and listing its
// tools when the server config does not set one.
const DefaultDiscoveryTimeout = 30 * time.Second

// ServerConfig describes one tool server.
type ServerConfig struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport"`

	// stdio
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	// http
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// RequiredCredentials are environment variable names the server needs.
	// They are read from the credential store and passed to stdio servers.
	// A missing one fails discovery for this server only.
	RequiredCredentials []string `yaml:"required_credentials"`

	CallTimeout      time.Duration `yaml:"call_timeout"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
}

func (c ServerConfig) callTimeout() time.Duration {
	if c.CallTimeout > 0 {
		return c.CallTimeout
	}
	return DefaultCallTimeout
}

func (c ServerConfig) discoveryTimeout() time.Duration {
	if c.DiscoveryTimeout > 0 {
		return c.DiscoveryTimeout
	}
	return DefaultDiscoveryTimeout
}

// Validate checks the fields required by the chosen transport.
func (c ServerConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	switch c.Transport {
	case TransportStdio, "":
		if strings.TrimSpace(c.Command) == "" {
			errs = append(errs, errors.New("command is required for stdio transport"))
		}
	case TransportHTTP:
		if strings.TrimSpace(c.URL) == "" {
			errs = append(errs, errors.New("url is required for http transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported transport %q", c.Transport))
	}
	if c.CallTimeout < 0 {
		errs = append(errs, errors.New("call_timeout must not be negative"))
	}
	if c.DiscoveryTimeout < 0 {
		errs = append(errs, errors.New("discovery_timeout must not be negative"))
	}
	return errors.Join(errs...)
}
