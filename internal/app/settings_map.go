package app

import (
	"picotick/internal/config"
	"picotick/internal/observability/debughttp"
	"picotick/internal/storage"
)

func mapStorageConfig(s config.StorageSettings) (storage.Config, bool) {
	if !s.Enabled() {
		return storage.Config{}, false
	}
	return storage.Config{Driver: s.Driver, Path: s.Path, BusyTimeout: s.BusyTimeout}, true
}

func debugConfig(s config.DebugSettings) debughttp.Config {
	return debughttp.Config{
		Enabled:       s.Enabled,
		Addr:          s.Addr,
		Prefix:        s.Prefix,
		Token:         s.Token,
		AllowInsecure: s.AllowInsecure,
		ReadTimeout:   s.ReadTimeout,
		IdleTimeout:   s.IdleTimeout,
	}
}
