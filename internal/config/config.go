package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides: SW_MONITOR_POLL_INTERVAL=30s.
const EnvPrefix = "SW"

type Config struct {
	Addr string // API bind address, e.g., "127.0.0.1:8080" (Windows) or ":8080" (Docker)

	Log struct {
		Dir   string
		Level string
	}

	Monitor struct {
		PollInterval     time.Duration // 0 disables polling
		ProbeTimeout     time.Duration
		OfflineThreshold int
		Concurrency      int
	}

	Probe struct {
		Kind          string // "tcp", "http", or "auto" (http, falling back to tcp)
		RetryAttempts int
		RetryBackoff  time.Duration
	}

	Registry struct {
		DefaultMute       bool
		LabelMode         string
		ReconcileInterval time.Duration // 0 disables reconciliation
	}

	Resolve struct {
		Ceiling int
	}

	Storage struct {
		Driver string // file, sqlite, postgres, memory
		Dir    string
		DSN    string
	}

	API struct {
		PublicKeys  []string
		AdminKeys   []string
		PublicRPM   int
		PublicBurst int
	}

	Notify struct {
		FallbackWebhook string
	}
}

var (
	drivers    = map[string]bool{"file": true, "sqlite": true, "postgres": true, "memory": true}
	probeKinds = map[string]bool{"tcp": true, "http": true, "auto": true}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("log.dir", "logs")
	v.SetDefault("log.level", "info")

	v.SetDefault("monitor.poll_interval", "60s")
	v.SetDefault("monitor.probe_timeout", "10s")
	v.SetDefault("monitor.offline_threshold", 3)
	v.SetDefault("monitor.concurrency", 8)

	v.SetDefault("probe.kind", "tcp")
	v.SetDefault("probe.retry_attempts", 2)
	v.SetDefault("probe.retry_backoff", "300ms")

	v.SetDefault("registry.default_mute", false)
	v.SetDefault("registry.label_mode", "status")
	v.SetDefault("registry.reconcile_interval", "5m")

	v.SetDefault("resolve.ceiling", 20)

	v.SetDefault("storage.driver", "file")
	v.SetDefault("storage.dir", "data")
	v.SetDefault("storage.dsn", "")

	v.SetDefault("api.public_keys", "")
	v.SetDefault("api.admin_keys", "")
	v.SetDefault("api.public_rpm", 60)
	v.SetDefault("api.public_burst", 20)

	v.SetDefault("notify.fallback_webhook", "")
}

// Load reads defaults, then the optional YAML file, then SW_* environment
// variables. Missing config files are fine.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("serverwatch")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	var c Config
	c.Addr = v.GetString("addr")
	c.Log.Dir = v.GetString("log.dir")
	c.Log.Level = v.GetString("log.level")

	c.Monitor.PollInterval = v.GetDuration("monitor.poll_interval")
	c.Monitor.ProbeTimeout = v.GetDuration("monitor.probe_timeout")
	c.Monitor.OfflineThreshold = v.GetInt("monitor.offline_threshold")
	c.Monitor.Concurrency = v.GetInt("monitor.concurrency")

	c.Probe.Kind = strings.ToLower(v.GetString("probe.kind"))
	c.Probe.RetryAttempts = v.GetInt("probe.retry_attempts")
	c.Probe.RetryBackoff = v.GetDuration("probe.retry_backoff")

	c.Registry.DefaultMute = v.GetBool("registry.default_mute")
	c.Registry.LabelMode = v.GetString("registry.label_mode")
	c.Registry.ReconcileInterval = v.GetDuration("registry.reconcile_interval")

	c.Resolve.Ceiling = v.GetInt("resolve.ceiling")

	c.Storage.Driver = strings.ToLower(v.GetString("storage.driver"))
	c.Storage.Dir = v.GetString("storage.dir")
	c.Storage.DSN = v.GetString("storage.dsn")

	c.API.PublicKeys = list(v.Get("api.public_keys"))
	c.API.AdminKeys = list(v.Get("api.admin_keys"))
	c.API.PublicRPM = v.GetInt("api.public_rpm")
	c.API.PublicBurst = v.GetInt("api.public_burst")

	c.Notify.FallbackWebhook = v.GetString("notify.fallback_webhook")

	return c, c.Validate()
}

func (c Config) Validate() error {
	switch {
	case c.Monitor.OfflineThreshold < 1:
		return fmt.Errorf("monitor.offline_threshold must be >= 1, got %d", c.Monitor.OfflineThreshold)
	case c.Monitor.PollInterval < 0 || c.Registry.ReconcileInterval < 0:
		return fmt.Errorf("intervals must not be negative")
	case !probeKinds[c.Probe.Kind]:
		return fmt.Errorf("probe.kind must be tcp, http or auto, got %q", c.Probe.Kind)
	case !drivers[c.Storage.Driver]:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	case c.Storage.Driver == "postgres" && c.Storage.DSN == "":
		return fmt.Errorf("storage.dsn is required for the postgres driver")
	}
	return nil
}

// list accepts either a YAML sequence or a comma-separated string.
func list(raw any) []string {
	var parts []string
	switch x := raw.(type) {
	case string:
		parts = strings.Split(x, ",")
	case []string:
		parts = x
	case []any:
		for _, p := range x {
			parts = append(parts, fmt.Sprint(p))
		}
	}
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
