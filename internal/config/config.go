// Package config loads cmd/cdpcli's TOML configuration file
// (SPEC_FULL.md §10.3) via the teacher's own `naoina/toml` dependency,
// following go-ethereum's cmd/utils/config.go loadConfig shape (strict
// decoding, bufio.Reader, a package-level toml.Config with the same
// field-naming convention).
package config

import (
	"bufio"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/naoina/toml"
)

var tomlSettings = toml.Config{
	NormFieldName: func(typ reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(typ reflect.Type, field string) string {
		return strings.ToLower(field)
	},
	MissingField: func(typ reflect.Type, field string) error {
		return fmt.Errorf("field %q is not defined in %s", field, typ)
	},
}

// TLS describes the optional TLS dial settings for cmd/cdpcli
// (SPEC_FULL.md §6 "wss://"). CertFile/KeyFile name a client certificate
// pair.
type TLS struct {
	Enabled            bool   `toml:"enabled"`
	CertFile           string `toml:"cert_file"`
	KeyFile            string `toml:"key_file"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

// Config is the on-disk shape loaded by cmd/cdpcli.
type Config struct {
	Host             string `toml:"host"`
	Port             int    `toml:"port"`
	AutoReconnect    bool   `toml:"auto_reconnect"`
	TLS              TLS    `toml:"tls"`
	CredentialsFile  string `toml:"credentials_file"`
	DebugListenAddr  string `toml:"debug_listen_addr"`
	DebugToken       string `toml:"debug_token"`
}

// Default returns the zero-value-safe defaults applied before a TOML
// file is loaded over them.
func Default() Config {
	return Config{
		Port:          7689,
		AutoReconnect: true,
	}
}

// Load reads and strictly decodes a TOML file at path into a Config that
// starts from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
