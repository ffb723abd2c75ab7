package secrets

import "os"

// EnvLoader returns a Loader that reads the given environment variables.
// Unset variables are omitted.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, k := range keys {
			if v := os.Getenv(k); v != "" {
				vals[k] = v
			}
		}
		return vals, nil
	}
}

// WithDefaults wraps next so keys it does not return fall back to defaults.
// Values from the config file are passed as defaults.
func WithDefaults(next Loader, defaults map[string]string) Loader {
	return func() (map[string]string, error) {
		vals, err := next()
		if err != nil {
			return nil, err
		}
		out := make(map[string]string, len(defaults)+len(vals))
		for k, v := range defaults {
			if v != "" {
				out[k] = v
			}
		}
		for k, v := range vals {
			out[k] = v
		}
		return out, nil
	}
}
