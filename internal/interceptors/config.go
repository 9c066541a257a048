package interceptors

import (
	"fmt"
	"log/slog"
)

// GetProfileConfig returns the table at
// [http.interceptors.<interceptorName>.profiles.<profileName>].
func GetProfileConfig(interceptorsCfg map[string]map[string]any, interceptorName, profileName string) (map[string]any, error) {
	profiles, ok := asMap(interceptorsCfg[interceptorName]["profiles"])
	if !ok {
		return nil, fmt.Errorf("no %s profiles configured, cannot find profile %q", interceptorName, profileName)
	}
	raw, ok := profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("%s profile %q not found", interceptorName, profileName)
	}
	profile, ok := asMap(raw)
	if !ok {
		return nil, fmt.Errorf("%s profile %q is not a table", interceptorName, profileName)
	}
	return profile, nil
}

// Build constructs interceptorName with the named profile. An empty profile
// name yields PassThrough, so routes can leave an interceptor unconfigured.
func Build(interceptorsCfg map[string]map[string]any, interceptorName, profileName string, log *slog.Logger) (Middleware, error) {
	if profileName == "" {
		return PassThrough, nil
	}
	conf, err := GetProfileConfig(interceptorsCfg, interceptorName, profileName)
	if err != nil {
		return nil, err
	}
	newFn, ok := Get(interceptorName)
	if !ok {
		return nil, fmt.Errorf("interceptor %q not registered (available: %v)", interceptorName, Names())
	}
	mw, err := newFn(conf, log)
	if err != nil {
		return nil, fmt.Errorf("%s profile %q: %w", interceptorName, profileName, err)
	}
	return mw, nil
}

func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}
