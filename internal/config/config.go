package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	APIURL string `envconfig:"API_URL"`
	WSURL  string `envconfig:"WS_URL"`
	Token  string `envconfig:"TOKEN"`

	SessionDB      string `envconfig:"SESSION_DB" default:"dmclient.db"`
	SessionSecret  string `envconfig:"SESSION_SECRET"`
	SessionTTLDays int    `envconfig:"SESSION_TTL_DAYS" default:"30"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogPretty bool   `envconfig:"LOG_PRETTY" default:"true"`

	NearBottomPx int `envconfig:"NEAR_BOTTOM_PX" default:"120"`
	NearTopPx    int `envconfig:"NEAR_TOP_PX" default:"40"`

	Reconnect    bool          `envconfig:"RECONNECT" default:"true"`
	ReconnectMin time.Duration `envconfig:"RECONNECT_MIN" default:"500ms"`
	ReconnectMax time.Duration `envconfig:"RECONNECT_MAX" default:"30s"`

	// Zero keeps the transport defaults.
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"0s"`
}

const envPrefix = "DMCLIENT"

// Load reads configuration from the environment, after an optional .env file
// in the working directory.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process(envPrefix, cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.APIURL == "" {
		return fmt.Errorf("%s_API_URL is required", envPrefix)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")

	if c.WSURL == "" {
		ws, err := deriveWSURL(c.APIURL)
		if err != nil {
			return err
		}
		c.WSURL = ws
	}
	c.WSURL = strings.TrimRight(c.WSURL, "/")

	if c.SessionTTLDays <= 0 {
		return fmt.Errorf("%s_SESSION_TTL_DAYS must be positive", envPrefix)
	}
	if c.ReconnectMin <= 0 || c.ReconnectMax < c.ReconnectMin {
		return fmt.Errorf("reconnect backoff must satisfy 0 < min <= max")
	}
	return nil
}

// SessionTTL is how long a stored session stays readable.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLDays) * 24 * time.Hour
}

func deriveWSURL(apiURL string) (string, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return "", fmt.Errorf("parse api url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("api url must be http or https, got %q", u.Scheme)
	}
	return u.String(), nil
}
