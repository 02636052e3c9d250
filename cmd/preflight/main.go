// cmd/preflight/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/hamed0406/serverwatch/internal/config"
)

func main() {
	cfgPath := flag.String("config", os.Getenv("SW_CONFIG"), "path to serverwatch.yaml")
	flag.Parse()

	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fail(err.Error())
	}

	if len(cfg.API.AdminKeys) == 0 {
		warn("SW_API_ADMIN_KEYS is empty; catalog changes are open to every caller.")
	}
	if len(cfg.API.PublicKeys) == 0 && len(cfg.API.AdminKeys) == 0 {
		warn("no API keys configured; the API runs unauthenticated.")
	} else {
		ok(fmt.Sprintf("%d public key(s), %d admin key(s)", len(cfg.API.PublicKeys), len(cfg.API.AdminKeys)))
	}

	for name, v := range map[string]string{
		"SW_API_ADMIN_KEYS":  os.Getenv("SW_API_ADMIN_KEYS"),
		"SW_API_PUBLIC_KEYS": os.Getenv("SW_API_PUBLIC_KEYS"),
	} {
		if strings.Contains(v, " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}

	ok("addr=" + cfg.Addr)

	switch cfg.Storage.Driver {
	case "memory":
		warn("storage.driver=memory; subscriptions are lost on restart.")
	case "postgres":
		ok("storage.driver=postgres, DSN present")
	default:
		ok("storage.driver=" + cfg.Storage.Driver + " under " + cfg.Storage.Dir)
	}

	if cfg.Monitor.PollInterval == 0 {
		warn("monitor.poll_interval=0; servers will never be probed.")
	} else {
		ok(fmt.Sprintf("polling every %s, offline after %d failures", cfg.Monitor.PollInterval, cfg.Monitor.OfflineThreshold))
	}

	if cfg.Notify.FallbackWebhook == "" {
		warn("notify.fallback_webhook empty; tenants without a channel only get log notifications.")
	}

	ok("preflight passed")
}
