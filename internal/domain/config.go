package domain

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	configKeyOMDB     = "omdb_key"
	configKeyUsername = "username"
	configKeyPassword = "password"
	configKeyBGAudio  = "bg_audio"
)

// UserConfig is the per-install configuration carried in the first path
// segment of every add-on URL.
type UserConfig struct {
	OMDBKey  string
	Username string
	Password string
	BGAudio  bool
}

// ParseUserConfig decodes the `key=value|key=value` segment. Values are
// path-escaped by the configure page; unknown keys are ignored.
func ParseUserConfig(raw string) (UserConfig, error) {
	segment := strings.TrimSpace(raw)
	if segment == "" {
		return UserConfig{}, fmt.Errorf("%w: empty configuration", ErrInvalidConfig)
	}
	if !strings.Contains(segment, "|") {
		// Some clients escape the separators as well.
		if unescaped, err := url.PathUnescape(segment); err == nil {
			segment = unescaped
		}
	}

	var cfg UserConfig
	for _, pair := range strings.Split(segment, "|") {
		if strings.TrimSpace(pair) == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return UserConfig{}, fmt.Errorf("%w: malformed pair %q", ErrInvalidConfig, key)
		}
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
		switch strings.TrimSpace(key) {
		case configKeyOMDB:
			cfg.OMDBKey = value
		case configKeyUsername:
			cfg.Username = value
		case configKeyPassword:
			cfg.Password = value
		case configKeyBGAudio:
			cfg.BGAudio = value == "on"
		}
	}
	if err := cfg.Validate(); err != nil {
		return UserConfig{}, err
	}
	return cfg, nil
}

func (c UserConfig) Validate() error {
	if c.OMDBKey == "" || c.Username == "" || c.Password == "" {
		return ErrInvalidConfig
	}
	return nil
}

// Encode renders the configuration back into its path segment form.
func (c UserConfig) Encode() string {
	bgAudio := "off"
	if c.BGAudio {
		bgAudio = "on"
	}
	pairs := make([]string, 0, 4)
	for _, item := range []struct {
		key   string
		value string
	}{
		{configKeyOMDB, c.OMDBKey},
		{configKeyUsername, c.Username},
		{configKeyPassword, c.Password},
		{configKeyBGAudio, bgAudio},
	} {
		if item.value == "" {
			continue
		}
		pairs = append(pairs, item.key+"="+url.PathEscape(item.value))
	}
	return strings.Join(pairs, "|")
}

// InstallLink is the stremio:// URL that installs the add-on with this
// configuration from the given public host.
func (c UserConfig) InstallLink(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	return "stremio://" + host + "/" + c.Encode() + "/manifest.json"
}
