package policy

import (
	"encoding/json"
	"os"

	"github.com/jrsteele09/go-workspace-gateway/accounts"
	apperrors "github.com/jrsteele09/go-workspace-gateway/internal/errors"
	"github.com/jrsteele09/go-workspace-gateway/internal/utils"
	"gopkg.in/yaml.v3"
)

// EnvSettings is the environment-provided policy configuration.
type EnvSettings interface {
	GetMultiAccountEnabled() bool
	GetAllowedAccounts() []string
	GetAccountConfigs() string
	GetDefaultTools() []string
}

// accountConfig is one value of the ACCOUNT_CONFIGS JSON object
type accountConfig struct {
	Enabled *bool    `json:"enabled"`
	Tools   []string `json:"tools"`
}

// LoadFile reads a YAML (or JSON) policy document.
func LoadFile(path string) (*Snapshot, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrapf(err, "reading policy file")
	}

	var doc Document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, apperrors.Wrapf(err, "parsing policy file %s", path)
	}
	return Compile(doc, "file:"+path)
}

// FromEnvironment builds a snapshot from ALLOWED_GOOGLE_ACCOUNTS,
// ACCOUNT_CONFIGS, DEFAULT_TOOLS and MULTI_ACCOUNT_ENABLED.
//
// With multi-account mode on and a non-empty allow-list, only listed accounts
// are allowed. ACCOUNT_CONFIGS may disable accounts or narrow their tools, but
// never admits an account the allow-list excludes.
func FromEnvironment(s EnvSettings) (*Snapshot, error) {
	allowed := s.GetAllowedAccounts()
	restrict := s.GetMultiAccountEnabled() && len(allowed) > 0

	doc := Document{
		RestrictAccounts:    restrict,
		DefaultCapabilities: s.GetDefaultTools(),
		Accounts:            map[string]AccountEntry{},
	}

	listed := make(map[string]bool, len(allowed))
	for _, email := range allowed {
		key := accounts.NormalizeEmail(email)
		listed[key] = true
		doc.Accounts[key] = AccountEntry{}
	}

	if raw := s.GetAccountConfigs(); raw != "" {
		var configs map[string]accountConfig
		if err := json.Unmarshal([]byte(raw), &configs); err != nil {
			return nil, apperrors.Wrapf(err, "parsing ACCOUNT_CONFIGS")
		}
		for email, c := range configs {
			key := accounts.NormalizeEmail(email)
			enabled := c.Enabled == nil || *c.Enabled
			if restrict && !listed[key] {
				enabled = false
			}
			doc.Accounts[key] = AccountEntry{Enabled: utils.Ptr(enabled), Capabilities: c.Tools}
		}
	}

	return Compile(doc, "environment")
}
