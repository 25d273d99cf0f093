package relay

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Config is the configuration of the relay.
type Config struct {
	Upstream UpstreamConfig `yaml:"upstream"`
	// OriginPatterns are the origins allowed to open a WebSocket, e.g. "chrome-extension://*".
	OriginPatterns []string `yaml:"originPatterns,omitempty"`
}

// UpstreamConfig describes the GraphQL endpoint receiving the relayed documents.
type UpstreamConfig struct {
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty"`
	// TokenFile contains a token sent as "Authorization: Bearer <token>".
	TokenFile string `yaml:"tokenFile,omitempty"`
}

// ErrNoUpstream is returned when the configuration has no upstream URL.
var ErrNoUpstream = errors.New("no upstream url configured")

// LoadConfig reads and validates a config file. Environment variables are expanded.
func LoadConfig(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(b))), config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if config.Upstream.URL == "" {
		return nil, ErrNoUpstream
	}
	return config, nil
}

// ObserveConfig sends the config to configChan on start and on every change of the file.
//
// Invalid configs are logged and skipped.
func ObserveConfig(ctx context.Context, filename string, configChan chan<- *Config) error {
	config, err := LoadConfig(filename)
	if err != nil {
		return err
	}
	select {
	case configChan <- config:
	case <-ctx.Done():
		return ctx.Err()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: editors often replace the file instead of writing it.
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath ||
				!event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			log.Info().Str("file", event.Name).Msg("config changed, reloading")
			config, err := LoadConfig(filename)
			if err != nil {
				log.Err(err).Msg("failed to reload config, keeping the previous one")
				continue
			}
			select {
			case configChan <- config:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Err(err).Msg("config watcher error")
		}
	}
}
