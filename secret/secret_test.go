package secret

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSecretIsRedacted(t *testing.T) {
	s := New("hunter2")

	assert.Equal(t, "hunter2", s.Reveal())
	assert.Equal(t, redacted, s.String())
	assert.Equal(t, redacted, fmt.Sprint(s))
	assert.NotContains(t, fmt.Sprintf("%#v", s), "hunter2")

	data, err := json.Marshal(struct{ Key Secret }{s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	out, err := yaml.Marshal(map[string]Secret{"key": s})
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")
}

func TestSecretLogsRedacted(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logger.Info("connecting", "password", New("hunter2"))

	assert.NotContains(t, buf.String(), "hunter2")
	assert.Contains(t, buf.String(), redacted)
}

func TestSecretUnmarshalYAML(t *testing.T) {
	var config struct {
		Key Secret `yaml:"key"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("key: s3cr3t\n"), &config))
	assert.Equal(t, "s3cr3t", config.Key.Reveal())
}

func TestSecretEqual(t *testing.T) {
	assert.True(t, New("a").Equal(New("a")))
	assert.False(t, New("a").Equal(New("b")))
	assert.True(t, Secret{}.IsZero())
	assert.Equal(t, "", Secret{}.String())
}

func TestDirStore(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "openstack"), []byte("pass\n"), 0600))

	store := DirStore{Root: root}

	s, err := store.Load("openstack")
	require.NoError(t, err)
	assert.Equal(t, "pass", s.Reveal())

	_, err = store.Load("missing")
	assert.Error(t, err)

	_, err = store.Load("../openstack")
	assert.EqualError(t, err, "invalid secret name '../openstack'")
}
