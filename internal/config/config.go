package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"attendance_service/internal/attendance"
)

// DefaultEvents are the events offered by the operator menu when none are configured.
var DefaultEvents = []string{"Thanksgiving", "Worship", "Prayer Meeting"}

type Config struct {
	DataDir            string        `mapstructure:"data_dir"`
	RosterPath         string        `mapstructure:"roster_path"`
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Events             []string      `mapstructure:"-"`
	RescanInterval     time.Duration `mapstructure:"rescan_interval"`
	MaxConcurrentScans int           `mapstructure:"max_concurrent_scans"`
	ScanRatePerMinute  int           `mapstructure:"scan_rate_per_minute"`
	ScanBurst          int           `mapstructure:"scan_burst"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel           string        `mapstructure:"log_level"`
	LogFormat          string        `mapstructure:"log_format"`
}

// Addr is the listen address for the scan listener.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load reads configuration from an optional file and ATTEND_* environment
// variables. An empty path skips the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("data_dir", "./attendance_records")
	v.SetDefault("roster_path", "./users.json")
	v.SetDefault("host", "")
	v.SetDefault("port", 8080)
	v.SetDefault("events", DefaultEvents)
	v.SetDefault("rescan_interval", "0s")
	v.SetDefault("max_concurrent_scans", 64)
	v.SetDefault("scan_rate_per_minute", 0)
	v.SetDefault("scan_burst", 10)
	v.SetDefault("read_timeout", "5s")
	v.SetDefault("write_timeout", "5s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("log_level", "INFO")
	v.SetDefault("log_format", "text")

	v.SetEnvPrefix("ATTEND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Events = eventList(v.Get("events"))

	if cfg.DataDir == "" {
		cfg.DataDir = "./attendance_records"
	}
	if cfg.RosterPath == "" {
		cfg.RosterPath = "./users.json"
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.RescanInterval < 0 {
		return Config{}, fmt.Errorf("invalid rescan_interval %s", cfg.RescanInterval)
	}
	if cfg.MaxConcurrentScans <= 0 {
		cfg.MaxConcurrentScans = 64
	}
	if cfg.ScanRatePerMinute < 0 {
		cfg.ScanRatePerMinute = 0
	}
	if cfg.ScanBurst <= 0 {
		cfg.ScanBurst = 10
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if len(cfg.Events) == 0 {
		cfg.Events = append([]string(nil), DefaultEvents...)
	}
	if err := checkEvents(cfg.Events); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// checkEvents rejects event names whose log file would escape the data
// directory, land on the aggregate log, or be shared with another event.
func checkEvents(events []string) error {
	files := make(map[string]string, len(events))
	for _, name := range events {
		if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
			return fmt.Errorf("invalid event name %q", name)
		}
		file := attendance.EventFile(name)
		if file == attendance.AggregateFile {
			return fmt.Errorf("event %q would write to %s", name, attendance.AggregateFile)
		}
		if other, ok := files[file]; ok {
			return fmt.Errorf("events %q and %q share log file %s", other, name, file)
		}
		files[file] = name
	}
	return nil
}

// eventList accepts either a list (config file) or a comma separated
// string (environment). Event names may contain spaces.
func eventList(raw interface{}) []string {
	var items []string
	switch val := raw.(type) {
	case string:
		items = strings.Split(val, ",")
	case []string:
		items = val
	case []interface{}:
		for _, item := range val {
			items = append(items, fmt.Sprintf("%v", item))
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
