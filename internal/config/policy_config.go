package config

import "github.com/spf13/viper"

const (
	multiAccountVar   = "MULTI_ACCOUNT_ENABLED"
	allowedAccountVar = "ALLOWED_GOOGLE_ACCOUNTS"
	accountConfigsVar = "ACCOUNT_CONFIGS"
	defaultToolsVar   = "DEFAULT_TOOLS"
	policyFileVar     = "POLICY_FILE"
)

type PolicyConfig interface {
	GetMultiAccountEnabled() bool
	GetAllowedAccounts() []string
	GetAccountConfigs() string
	GetDefaultTools() []string
	GetPolicyFile() string
}

type Policy struct{}

var _ PolicyConfig = Policy{}

func (Policy) GetMultiAccountEnabled() bool {
	return viper.GetBool(multiAccountVar)
}

func (Policy) GetAllowedAccounts() []string {
	return GetList(allowedAccountVar)
}

// GetAccountConfigs returns the raw ACCOUNT_CONFIGS JSON document.
func (Policy) GetAccountConfigs() string {
	return GetEnv(accountConfigsVar, "")
}

// GetDefaultTools returns capabilities granted to accounts without their own list.
// Nil means every capability.
func (Policy) GetDefaultTools() []string {
	return GetList(defaultToolsVar)
}

func (Policy) GetPolicyFile() string {
	return GetEnv(policyFileVar, "")
}
