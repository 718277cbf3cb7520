package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	RouteBackendAPI  = "api"
	RouteBackendOSRM = "osrm"
)

// ClientConfig configures the rider binary.
type ClientConfig struct {
	APIBaseURL     string        `yaml:"api_base_url"`
	ChannelURL     string        `yaml:"channel_url"`
	StatusAddr     string        `yaml:"status_addr"`
	MatchingWindow time.Duration `yaml:"matching_window"`
	CountdownTick  time.Duration `yaml:"countdown_tick"`
	GeoInterval    time.Duration `yaml:"geo_interval"`
	ReconnectMin   time.Duration `yaml:"reconnect_min"`
	ReconnectMax   time.Duration `yaml:"reconnect_max"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	DispatchURL   string `yaml:"dispatch_url"`
	DispatchPhone string `yaml:"dispatch_phone"`

	RedisAddr        string   `yaml:"redis_addr"`
	RedisPassword    string   `yaml:"redis_password"`
	RedisRiderGeoKey string   `yaml:"redis_rider_geo_key"`
	KafkaBrokers     []string `yaml:"kafka_brokers"`
	KafkaTopic       string   `yaml:"kafka_topic"`

	SessionDir   string `yaml:"session_dir"`
	AuthToken    string `yaml:"auth_token"`
	JWTSecret    string `yaml:"jwt_secret"`
	UserID       string `yaml:"user_id"`
	Name         string `yaml:"name"`
	Phone        string `yaml:"phone"`
	RouteBackend string `yaml:"route_backend"`
	OSRMEndpoint string `yaml:"osrm_endpoint"`

	StartLat   float64 `yaml:"start_lat"`
	StartLng   float64 `yaml:"start_lng"`
	ReplayPath string  `yaml:"replay_path"`
	NoTUI      bool    `yaml:"no_tui"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		APIBaseURL:       "http://localhost:4000",
		ChannelURL:       "ws://localhost:4000/ws",
		StatusAddr:       "127.0.0.1:9091",
		MatchingWindow:   10 * time.Minute,
		CountdownTick:    time.Second,
		GeoInterval:      3 * time.Second,
		ReconnectMin:     time.Second,
		ReconnectMax:     30 * time.Second,
		RequestTimeout:   10 * time.Second,
		RedisRiderGeoKey: "riders_geo",
		KafkaTopic:       "rider-positions",
		SessionDir:       ".rider-session",
		RouteBackend:     RouteBackendAPI,
		OSRMEndpoint:     "http://localhost:5000",
		StartLat:         12.9716,
		StartLng:         77.5946,
		LogLevel:         "info",
		LogFile:          "rider.log",
	}
}

// LoadClientConfig reads defaults, the YAML file named by RIDER_CONFIG,
// .env and the environment.
func LoadClientConfig() (ClientConfig, error) {
	return loadClientConfig(os.Getenv("RIDER_CONFIG"))
}

func loadClientConfig(path string) (ClientConfig, error) {
	cfg := defaultClientConfig()
	if err := loadFileLayers(path, &cfg); err != nil {
		return cfg, err
	}
	var errs []error

	setStringFromEnv(&cfg.APIBaseURL, "API_BASE_URL")
	setStringFromEnv(&cfg.ChannelURL, "CHANNEL_URL")
	setStringFromEnv(&cfg.StatusAddr, "STATUS_ADDR")
	setDurationFromEnv(&cfg.MatchingWindow, "MATCHING_WINDOW", &errs)
	setDurationFromEnv(&cfg.CountdownTick, "COUNTDOWN_TICK", &errs)
	setDurationFromEnv(&cfg.GeoInterval, "GEO_INTERVAL", &errs)
	setDurationFromEnv(&cfg.ReconnectMin, "RECONNECT_MIN", &errs)
	setDurationFromEnv(&cfg.ReconnectMax, "RECONNECT_MAX", &errs)
	setDurationFromEnv(&cfg.RequestTimeout, "REQUEST_TIMEOUT", &errs)

	setStringFromEnv(&cfg.DispatchURL, "DISPATCH_URL")
	setStringFromEnv(&cfg.DispatchPhone, "DISPATCH_PHONE")

	setStringFromEnv(&cfg.RedisAddr, "REDIS_ADDR")
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	setStringFromEnv(&cfg.RedisRiderGeoKey, "REDIS_RIDER_GEO_KEY")
	setListFromEnv(&cfg.KafkaBrokers, "KAFKA_BROKERS")
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	setStringFromEnv(&cfg.SessionDir, "SESSION_DIR")
	setStringFromEnv(&cfg.AuthToken, "AUTH_TOKEN")
	setStringFromEnv(&cfg.JWTSecret, "JWT_SECRET")
	setStringFromEnv(&cfg.UserID, "RIDER_USER_ID")
	setStringFromEnv(&cfg.Name, "RIDER_NAME")
	setStringFromEnv(&cfg.Phone, "RIDER_PHONE")
	setStringFromEnv(&cfg.RouteBackend, "ROUTE_BACKEND")
	setStringFromEnv(&cfg.OSRMEndpoint, "OSRM_ENDPOINT")

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	setStringFromEnv(&cfg.LogFile, "LOG_FILE")

	return cfg, errors.Join(append(errs, cfg.validate()...)...)
}

func (c *ClientConfig) validate() []error {
	var errs []error
	requirePositive(&errs, "MATCHING_WINDOW", c.MatchingWindow)
	requirePositive(&errs, "COUNTDOWN_TICK", c.CountdownTick)
	requirePositive(&errs, "GEO_INTERVAL", c.GeoInterval)
	requirePositive(&errs, "RECONNECT_MIN", c.ReconnectMin)
	requirePositive(&errs, "REQUEST_TIMEOUT", c.RequestTimeout)
	if c.ReconnectMax < c.ReconnectMin {
		errs = append(errs, fmt.Errorf("RECONNECT_MAX must be >= RECONNECT_MIN"))
	}
	if c.RouteBackend != RouteBackendAPI && c.RouteBackend != RouteBackendOSRM {
		errs = append(errs, fmt.Errorf("ROUTE_BACKEND must be %q or %q, got %q", RouteBackendAPI, RouteBackendOSRM, c.RouteBackend))
	}
	if c.APIBaseURL == "" || c.ChannelURL == "" {
		errs = append(errs, fmt.Errorf("API_BASE_URL and CHANNEL_URL are required"))
	}
	return errs
}

// CallDriverURL is the fallback dispatch endpoint.
func (c ClientConfig) CallDriverURL() string {
	if c.DispatchURL != "" {
		return c.DispatchURL
	}
	return strings.TrimRight(c.APIBaseURL, "/") + "/twilio/call-driver"
}

// ParseClientFlags loads the layered configuration and applies any
// flags given on the command line on top.
func ParseClientFlags(args []string) (ClientConfig, error) {
	fs := pflag.NewFlagSet("rider", pflag.ContinueOnError)
	path := fs.String("config", os.Getenv("RIDER_CONFIG"), "YAML config file")
	user := fs.String("user", "", "rider user id (overrides the stored identity)")
	lat := fs.Float64("lat", 0, "starting latitude for the static position source")
	lng := fs.Float64("lng", 0, "starting longitude for the static position source")
	replay := fs.String("replay", "", "YAML track to replay as device positions")
	noTUI := fs.Bool("no-tui", false, "run headless with the status server only")
	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, err
	}

	cfg, err := loadClientConfig(*path)
	if err != nil {
		return cfg, err
	}
	if fs.Changed("user") {
		cfg.UserID = *user
	}
	if fs.Changed("lat") {
		cfg.StartLat = *lat
	}
	if fs.Changed("lng") {
		cfg.StartLng = *lng
	}
	if fs.Changed("replay") {
		cfg.ReplayPath = *replay
	}
	if fs.Changed("no-tui") {
		cfg.NoTUI = *noTUI
	}
	return cfg, nil
}
