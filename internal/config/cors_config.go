package config

import "strings"

const corsOriginsVar = "CORS_ORIGINS"

type Cors struct{}

var _ CorsConfig = Cors{}

type AllowedOrigins map[string]struct{}
type nullValue = struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins returns CORS_ORIGINS, or the wildcard when unset.
func (Cors) GetAllowedOrigins() AllowedOrigins {
	origins := GetList(corsOriginsVar)
	if len(origins) == 0 {
		return AllowedOrigins{"*": nullValue{}}
	}
	allowed := make(AllowedOrigins, len(origins))
	for _, o := range origins {
		allowed[o] = nullValue{}
	}
	return allowed
}

func (Cors) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (Cors) GetAllowedHeaders() string {
	return "Content-Type, Authorization, Mcp-Session-Id"
}
