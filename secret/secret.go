package secret

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const redacted = "********"

// Secret holds a sensitive string. It never prints, logs or serializes its value.
type Secret struct {
	value string
}

func New(value string) Secret {
	return Secret{value: value}
}

// Reveal returns the plaintext value. Callers must not log it.
func (s Secret) Reveal() string {
	return s.value
}

func (s Secret) IsZero() bool {
	return s.value == ""
}

func (s Secret) Equal(other Secret) bool {
	return subtle.ConstantTimeCompare([]byte(s.value), []byte(other.value)) == 1
}

func (s Secret) String() string {
	if s.IsZero() {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string {
	return "secret.Secret{" + s.String() + "}"
}

func (s Secret) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s Secret) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	s.value = value
	return nil
}

// Store resolves secrets by name.
type Store interface {
	Load(name string) (Secret, error)
}

// DirStore reads each secret from a file named after it under Root.
type DirStore struct {
	Root string
}

func (d DirStore) Load(name string) (Secret, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return Secret{}, fmt.Errorf("invalid secret name '%s'", name)
	}

	content, err := os.ReadFile(filepath.Join(d.Root, name))
	if err != nil {
		return Secret{}, fmt.Errorf("failed to read secret '%s': %w", name, err)
	}
	return New(strings.TrimSpace(string(content))), nil
}
