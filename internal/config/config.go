// Package config loads the client configuration with the priority
// CLI flags > environment variables > defaults.
package config

import (
	"fmt"
	"os"
)

// Default configuration values.
const (
	DefaultServerURL = "ws://localhost:8080/ws"
	DefaultSTUN      = "stun:stun.l.google.com:19302"
)

// Config holds the client configuration.
type Config struct {
	// ServerURL is the signaling server websocket endpoint.
	ServerURL string

	// Name is the display name announced to the room.
	Name string

	// ICE servers for the transport.
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Options carries CLI flag overrides into Load.
type Options struct {
	ServerURL  string
	Name       string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
}

// Load resolves each setting: CLI flag, then environment, then default.
func Load(opts Options) (*Config, error) {
	serverURL := firstOf(opts.ServerURL, os.Getenv("MEET_SERVER_URL"), DefaultServerURL)

	name := firstOf(opts.Name, os.Getenv("MEET_NAME"))
	if name == "" {
		host, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("no display name and hostname unavailable: %w", err)
		}
		name = host
	}

	return &Config{
		ServerURL:  serverURL,
		Name:       name,
		STUNServer: firstOf(opts.STUNServer, os.Getenv("STUN_SERVER"), DefaultSTUN),
		TURNServer: firstOf(opts.TURNServer, os.Getenv("TURN_SERVER")),
		TURNUser:   firstOf(opts.TURNUser, os.Getenv("TURN_USERNAME")),
		TURNPass:   firstOf(opts.TURNPass, os.Getenv("TURN_PASSWORD")),
	}, nil
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// GetSTUNServers returns the STUN server URLs.
func (c *Config) GetSTUNServers() []string {
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured.
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("%s:3478?transport=udp", c.TURNServer),
		fmt.Sprintf("%s:3478?transport=tcp", c.TURNServer),
	}
}
