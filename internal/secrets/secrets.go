// Package secrets decrypts age-encrypted values in CSW config files.
//
// An encrypted value is written as ENC[<base64 age ciphertext>] anywhere a
// string is expected, typically nats.token. Each binary decrypts its own
// config at load time with an identity taken from CSW_AGE_KEY,
// CSW_AGE_KEY_FILE, the secrets.identity key, or ~/.config/csw/age.key.
package secrets

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"filippo.io/age"
	"github.com/spf13/viper"
)

const (
	encPrefix = "ENC["
	encSuffix = "]"

	DefaultKeyFilename = "age.key"
	EnvAgeKey          = "CSW_AGE_KEY"
	EnvAgeKeyFile      = "CSW_AGE_KEY_FILE"
	ConfigKey          = "secrets.identity"
)

// ErrNoIdentity is returned when encrypted values are present but no
// identity is configured.
var ErrNoIdentity = errors.New("secrets: no age identity configured")

// IsEncrypted reports whether value is a non-empty ENC[...] wrapper.
func IsEncrypted(value string) bool {
	return len(value) > len(encPrefix)+len(encSuffix) &&
		strings.HasPrefix(value, encPrefix) && strings.HasSuffix(value, encSuffix)
}

// Encrypt seals plaintext for recipients as an ENC[...] string.
func Encrypt(plaintext string, recipients ...age.Recipient) (string, error) {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, recipients...)
	if err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if _, err := io.WriteString(w, plaintext); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("age encrypt: %w", err)
	}
	return encPrefix + base64.StdEncoding.EncodeToString(buf.Bytes()) + encSuffix, nil
}

// Decrypt opens an ENC[...] string.
func Decrypt(value string, identities ...age.Identity) (string, error) {
	if !IsEncrypted(value) {
		return "", errors.New("value is not wrapped in ENC[...]")
	}
	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(strings.TrimPrefix(value, encPrefix), encSuffix))
	if err != nil {
		return "", fmt.Errorf("decode base64: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identities...)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("age decrypt: %w", err)
	}
	return string(plaintext), nil
}

// DefaultKeyPath is ~/.config/csw/age.key.
func DefaultKeyPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "csw", DefaultKeyFilename)
}

// GenerateKeyFile writes a new X25519 identity to path, refusing to
// overwrite an existing file.
func GenerateKeyFile(path string) (*age.X25519Identity, error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	content := fmt.Sprintf("# created: %s\n# public key: %s\n%s\n",
		time.Now().Format(time.RFC3339), id.Recipient(), id)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("key file already exists: %s (remove it first to regenerate)", path)
		}
		return nil, err
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return nil, err
	}
	return id, nil
}

// LoadKeyFile parses the identities in an age key file.
func LoadKeyFile(path string) ([]age.Identity, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open identity file: %w", err)
	}
	defer f.Close()
	ids, err := age.ParseIdentities(f)
	if err != nil {
		return nil, fmt.Errorf("parse identity file %s: %w", path, err)
	}
	return ids, nil
}

// Identities finds the configured identity. It returns nil, nil when none
// is configured; a configured but unreadable source is an error.
func Identities(v *viper.Viper) ([]age.Identity, error) {
	if raw := os.Getenv(EnvAgeKey); raw != "" {
		id, err := age.ParseX25519Identity(strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", EnvAgeKey, err)
		}
		return []age.Identity{id}, nil
	}
	if path := os.Getenv(EnvAgeKeyFile); path != "" {
		return LoadKeyFile(path)
	}
	if path := v.GetString(ConfigKey); path != "" {
		return LoadKeyFile(expandHome(path))
	}
	path := DefaultKeyPath()
	if _, err := os.Stat(path); err != nil {
		return nil, nil
	}
	return LoadKeyFile(path)
}

// Recipient returns the public key of the configured X25519 identity.
func Recipient(v *viper.Viper) (age.Recipient, error) {
	ids, err := Identities(v)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNoIdentity
	}
	x, ok := ids[0].(*age.X25519Identity)
	if !ok {
		return nil, errors.New("configured identity is not an X25519 key")
	}
	return x.Recipient(), nil
}

// DecryptConfig replaces every ENC[...] string in v with its plaintext.
// A config without encrypted values needs no identity.
func DecryptConfig(v *viper.Viper) error {
	var keys []string
	for _, key := range v.AllKeys() {
		if IsEncrypted(v.GetString(key)) {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	ids, err := Identities(v)
	if err != nil {
		return fmt.Errorf("resolve encryption identity: %w", err)
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: config has encrypted values; set %s, %s or %s", ErrNoIdentity, EnvAgeKey, EnvAgeKeyFile, ConfigKey)
	}
	for _, key := range keys {
		plaintext, err := Decrypt(v.GetString(key), ids...)
		if err != nil {
			return fmt.Errorf("decrypt config key %q: %w", key, err)
		}
		v.Set(key, plaintext)
	}
	return nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
