package credwatch

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCreds(t *testing.T, path string, creds map[string]string) {
	t.Helper()
	data, err := json.Marshal(creds)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))
}

func TestNewDeliversInitialContentsSynchronously(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	writeCreds(t, path, map[string]string{"Username": "alice", "Password": "hunter2"})

	var got map[string]string
	w, err := New(path, func(c map[string]string) { got = c }, nil)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, "alice", got["Username"])
	assert.Equal(t, "hunter2", got["Password"])
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	writeCreds(t, path, map[string]string{"Username": "alice", "Password": "hunter2"})

	changes := make(chan map[string]string, 4)
	w, err := New(path, func(c map[string]string) { changes <- c }, nil)
	require.NoError(t, err)
	defer w.Close()

	<-changes // initial delivery

	writeCreds(t, path, map[string]string{"Username": "alice", "Password": "newpass"})

	select {
	case c := <-changes:
		assert.Equal(t, "newpass", c["Password"])
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for credentials reload")
	}
}

func TestNewErrorsOnMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope.json"), func(map[string]string) {}, nil)
	assert.Error(t, err)
}
