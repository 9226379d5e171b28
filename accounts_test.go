package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAccountsFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts.txt")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadAccounts_ParsesValidLines(t *testing.T) {
	t.Parallel()
	path := writeAccountsFile(t, "alice:secretpw:SHAREDSECRETA\nbob:otherpw:SHAREDSECRETB\n")

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)

	assert.Equal(t, Account{Username: "alice", Password: "secretpw", SharedSecret: "SHAREDSECRETA"}, accounts[0])
	assert.Equal(t, Account{Username: "bob", Password: "otherpw", SharedSecret: "SHAREDSECRETB"}, accounts[1])
}

func TestLoadAccounts_OptionalProxyNameField(t *testing.T) {
	t.Parallel()
	path := writeAccountsFile(t, "alice:secretpw:SHAREDSECRETA:residential-1\n")

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "residential-1", accounts[0].ProxyName)
}

func TestLoadAccounts_SkipsBlankAndCommentLines(t *testing.T) {
	t.Parallel()
	path := writeAccountsFile(t, "\n# comment line\nalice:secretpw:SHAREDSECRETA\n   \n")

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	assert.Len(t, accounts, 1)
}

func TestLoadAccounts_SkipsMalformedLines(t *testing.T) {
	t.Parallel()
	path := writeAccountsFile(t, "onlytwo:fields\nalice:secretpw:SHAREDSECRETA\n")

	accounts, err := LoadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "alice", accounts[0].Username)
}

func TestLoadAccounts_MissingFileReturnsError(t *testing.T) {
	t.Parallel()
	_, err := LoadAccounts(filepath.Join(t.TempDir(), "does-not-exist.txt"))
	assert.Error(t, err)
}
