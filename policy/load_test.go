package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-workspace-gateway/policy"
	"github.com/stretchr/testify/require"
)

type envSettings struct {
	multi    bool
	allowed  []string
	configs  string
	defaults []string
}

func (e envSettings) GetMultiAccountEnabled() bool  { return e.multi }
func (e envSettings) GetAllowedAccounts() []string  { return e.allowed }
func (e envSettings) GetAccountConfigs() string     { return e.configs }
func (e envSettings) GetDefaultTools() []string     { return e.defaults }

func TestFromEnvironment_AllowListRestricts(t *testing.T) {
	s, err := policy.FromEnvironment(envSettings{
		multi:   true,
		allowed: []string{"Alice@Example.com", "bob@example.com"},
		configs: `{"bob@example.com": {"tools": ["gmail"]}, "eve@example.com": {"enabled": true}}`,
	})
	require.NoError(t, err)

	require.True(t, s.RestrictAccounts())
	require.True(t, s.IsAllowed("alice@example.com"))
	require.True(t, s.CanInvoke("alice@example.com", "drive.write"))
	require.True(t, s.CanInvoke("bob@example.com", "gmail.read"))
	require.False(t, s.CanInvoke("bob@example.com", "drive.read"))
	require.False(t, s.IsAllowed("eve@example.com"), "configs cannot widen the allow-list")
	require.False(t, s.IsAllowed("mallory@example.com"))
}

func TestFromEnvironment_EmptyAllowListMeansOpen(t *testing.T) {
	s, err := policy.FromEnvironment(envSettings{multi: true})
	require.NoError(t, err)
	require.False(t, s.RestrictAccounts())
	require.True(t, s.IsAllowed("anyone@example.com"))
}

func TestFromEnvironment_MultiAccountDisabled(t *testing.T) {
	s, err := policy.FromEnvironment(envSettings{
		multi:    false,
		allowed:  []string{"alice@example.com"},
		configs:  `{"off@example.com": {"enabled": false}}`,
		defaults: []string{"gmail", "drive"},
	})
	require.NoError(t, err)
	require.True(t, s.IsAllowed("stranger@example.com"))
	require.False(t, s.IsAllowed("off@example.com"))
	require.True(t, s.CanInvoke("stranger@example.com", "drive.read"))
	require.False(t, s.CanInvoke("stranger@example.com", "calendar.read"))
}

func TestFromEnvironment_InvalidJSON(t *testing.T) {
	_, err := policy.FromEnvironment(envSettings{configs: "{not json"})
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
restrict_accounts: true
default_capabilities: [gmail, calendar]
accounts:
  alice@example.com:
    capabilities: [gmail.read]
  bob@example.com:
    enabled: false
  carol@example.com:
    capabilities: []
  dave@example.com: {}
`), 0o600))

	s, err := policy.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "file:"+path, s.Source())

	require.True(t, s.CanInvoke("alice@example.com", "gmail.read"))
	require.False(t, s.CanInvoke("alice@example.com", "calendar.read"))
	require.False(t, s.IsAllowed("bob@example.com"))
	require.True(t, s.IsAllowed("carol@example.com"))
	require.False(t, s.CanInvoke("carol@example.com", "gmail.read"))
	require.True(t, s.CanInvoke("dave@example.com", "calendar.read"))
	require.False(t, s.IsAllowed("stranger@example.com"))
}

func TestLoadFile_Errors(t *testing.T) {
	_, err := policy.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("accounts: [unclosed"), 0o600))
	_, err = policy.LoadFile(path)
	require.Error(t, err)
}
