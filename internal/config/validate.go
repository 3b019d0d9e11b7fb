package config

import "fmt"

// Validate returns the misconfigurations that must be fixed before running in production.
func Validate(c Config) []string {
	var problems []string

	if c.GetClientID() == "" {
		problems = append(problems, "GOOGLE_CLIENT_ID must be set")
	}
	if c.GetClientSecret() == "" {
		problems = append(problems, "GOOGLE_CLIENT_SECRET must be set")
	}
	if c.GetStateSecret() == defaultStateSecret {
		problems = append(problems, "STATE_SECRET must be changed from its default")
	}
	if _, err := c.GetCredentialEncryptionKey(); err != nil {
		problems = append(problems, err.Error())
	}
	switch c.GetCredentialBackend() {
	case BackendSQLite, BackendRedis:
	case BackendMemory:
		if c.IsProduction() {
			problems = append(problems, "CREDENTIAL_BACKEND=memory does not survive restarts")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown CREDENTIAL_BACKEND %q", c.GetCredentialBackend()))
	}
	return problems
}
