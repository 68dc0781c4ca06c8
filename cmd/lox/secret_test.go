package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benaskins/lox/internal/audit"
	"github.com/benaskins/lox/internal/keyring"
)

// useMemoryStore makes every command open services of one shared
// in-memory store.
func useMemoryStore(t *testing.T) *keyring.MemoryStore {
	t.Helper()
	mem := keyring.NewMemoryStore("")
	old := openStore
	openStore = func(service string) (keyring.Store, error) {
		return mem.WithService(service), nil
	}
	t.Cleanup(func() { openStore = old })
	return mem
}

// execute runs the CLI with a private config file and returns stdout.
func execute(t *testing.T, configYAML string, args ...string) (string, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0600))

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(append([]string{"--config", path, "--no-color"}, args...))
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		closeAuditLog()
	})

	err := rootCmd.Execute()
	return stdout.String(), err
}

func TestSetGetDelete(t *testing.T) {
	useMemoryStore(t)
	fakeStdin(t, strings.NewReader(""), false)

	stdout, err := execute(t, "", "set", "svc", "token", "hunter2")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Secret "token" stored`)

	stdout, err = execute(t, "", "get", "svc", "token")
	require.NoError(t, err)
	assert.Equal(t, "hunter2", stdout, "get writes raw bytes")

	stdout, err = execute(t, "", "delete", "svc", "token")
	require.NoError(t, err)
	assert.Contains(t, stdout, `Secret "token" deleted`)

	_, err = execute(t, "", "get", "svc", "token")
	assert.ErrorIs(t, err, keyring.ErrNotFound)
}

func TestGetReadsIDFromStdin(t *testing.T) {
	mem := useMemoryStore(t)
	require.NoError(t, mem.WithService("svc").Set("token", []byte("v")))
	fakeStdin(t, strings.NewReader("token\n"), false)

	stdout, err := execute(t, "", "get", "svc", "-")
	require.NoError(t, err)
	assert.Equal(t, "v", stdout)
}

func TestSetReadsSecretFromStdin(t *testing.T) {
	mem := useMemoryStore(t)
	fakeStdin(t, strings.NewReader("from-pipe"), false)

	_, err := execute(t, "", "set", "svc", "token")
	require.NoError(t, err)

	h, err := mem.WithService("svc").Get("token")
	require.NoError(t, err)
	defer h.Destroy()
	assert.Equal(t, []byte("from-pipe"), h.Bytes())
}

func TestPeekSingleMatchPrintsValue(t *testing.T) {
	mem := useMemoryStore(t)
	require.NoError(t, mem.WithService("svc").Set("a", []byte("1")))
	require.NoError(t, mem.WithService("svc").Set("b", []byte("2")))
	fakeStdin(t, strings.NewReader(""), true)

	stdout, err := execute(t, "", "peek", "account=b")
	require.NoError(t, err)
	assert.Equal(t, "2\n", stdout)
}

func TestPeekAllPrintsLabels(t *testing.T) {
	mem := useMemoryStore(t)
	require.NoError(t, mem.WithService("svc").Set("a", []byte("1")))
	require.NoError(t, mem.WithService("svc").Set("b", []byte("2")))
	fakeStdin(t, strings.NewReader(""), true)

	stdout, err := execute(t, "", "peek")
	require.NoError(t, err)
	assert.Equal(t,
		"account=a,kind=memory,service=svc -> 1\n"+
			"account=b,kind=memory,service=svc -> 2\n",
		stdout)
}

func TestPeekInvalidCriteria(t *testing.T) {
	useMemoryStore(t)
	fakeStdin(t, strings.NewReader(""), true)

	_, err := execute(t, "", "peek", "no-equals-sign")
	assert.ErrorIs(t, err, keyring.ErrInvalidCriteria)
}

func TestList(t *testing.T) {
	mem := useMemoryStore(t)
	require.NoError(t, mem.WithService("svc").Set("a", []byte("super-secret")))

	stdout, err := execute(t, "", "ls")
	require.NoError(t, err)
	assert.Equal(t, "account=a,kind=memory,service=svc\n", stdout)
	assert.NotContains(t, stdout, "super-secret")
}

func TestListEmpty(t *testing.T) {
	useMemoryStore(t)

	stdout, err := execute(t, "", "list")
	require.NoError(t, err)
	assert.Empty(t, stdout)
}

func TestAuditLogFromConfig(t *testing.T) {
	useMemoryStore(t)
	fakeStdin(t, strings.NewReader(""), false)
	auditPath := filepath.Join(t.TempDir(), "audit.log")

	_, err := execute(t, "audit_log: "+auditPath+"\n", "set", "svc", "token", "hunter2")
	require.NoError(t, err)
	closeAuditLog()

	data, err := os.ReadFile(auditPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")

	var e audit.Entry
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &e))
	assert.Equal(t, audit.ActionSecretWrite, e.Action)
	assert.Equal(t, "svc", e.Service)
	assert.Equal(t, "token", e.ID)
	assert.Equal(t, "cli", e.Actor)
	assert.Equal(t, "memory", e.Backend)
}

func TestBadConfig(t *testing.T) {
	useMemoryStore(t)

	_, err := execute(t, "log_level: loud\n", "list")
	assert.ErrorContains(t, err, "loading config")
}

func TestArgumentValidation(t *testing.T) {
	useMemoryStore(t)

	_, err := execute(t, "", "set", "svc")
	assert.Error(t, err)
	_, err = execute(t, "", "list", "extra")
	assert.Error(t, err)
}
