package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Defaults applied when the properties file omits a key.
const (
	DefaultSyncInterval = 60 * time.Second
	DefaultDatabasePath = "geofleet.db"
	DefaultGeocoderURL  = "https://nominatim.openstreetmap.org"
)

// Config holds the process-wide settings, loaded once at startup from a
// key-value properties file and passed explicitly to every component.
type Config struct {
	BaseURL    string
	APIToken   string
	VehicleIDs []string

	DatabasePath      string
	RemoteDatabaseURL string // empty disables the remote vehicle store
	GeocoderURL       string

	SyncInterval          time.Duration
	PositionRetentionDays int // 0 disables stale-position purging

	LogLevel      string
	LogFilePath   string
	LogMaxAgeDays int
}

// Load reads the properties file at path. BASE_URL, API_TOKEN and
// vehicle.ids are required; everything else falls back to defaults.
func Load(path string) (*Config, error) {
	props, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	c := &Config{
		BaseURL:           strings.TrimRight(props["BASE_URL"], "/"),
		APIToken:          props["API_TOKEN"],
		VehicleIDs:        splitIDs(props["vehicle.ids"]),
		DatabasePath:      props["DATABASE_PATH"],
		RemoteDatabaseURL: props["REMOTE_DATABASE_URL"],
		GeocoderURL:       strings.TrimRight(props["GEOCODER_URL"], "/"),
		SyncInterval:      DefaultSyncInterval,
		LogLevel:          props["LOG_LEVEL"],
		LogFilePath:       props["LOG_FILE_PATH"],
	}

	if c.BaseURL == "" {
		return nil, fmt.Errorf("config %s: BASE_URL is required", path)
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("config %s: API_TOKEN is required", path)
	}
	if len(c.VehicleIDs) == 0 {
		return nil, fmt.Errorf("config %s: vehicle.ids is required", path)
	}

	if c.DatabasePath == "" {
		c.DatabasePath = DefaultDatabasePath
	}
	if c.GeocoderURL == "" {
		c.GeocoderURL = DefaultGeocoderURL
	}

	if v := props["SYNC_INTERVAL_SECONDS"]; v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("config %s: invalid SYNC_INTERVAL_SECONDS %q", path, v)
		}
		c.SyncInterval = time.Duration(secs) * time.Second
	}

	if v := props["POSITION_RETENTION_DAYS"]; v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("config %s: invalid POSITION_RETENTION_DAYS %q", path, v)
		}
		c.PositionRetentionDays = days
	}

	if v := props["LOG_MAX_AGE_DAYS"]; v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("config %s: invalid LOG_MAX_AGE_DAYS %q", path, v)
		}
		c.LogMaxAgeDays = days
	}

	return c, nil
}

// GetLogLevel maps the configured level name to a logrus level,
// defaulting to Info.
func (c *Config) GetLogLevel() log.Level {
	switch strings.ToUpper(c.LogLevel) {
	case "DEBUG":
		return log.DebugLevel
	case "INFO":
		return log.InfoLevel
	case "WARN":
		return log.WarnLevel
	case "ERROR":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// splitIDs splits a comma-separated id list, trimming whitespace per entry
// and dropping empty entries.
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	var ids []string
	for _, part := range strings.Split(s, ",") {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
