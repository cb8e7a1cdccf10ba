package am

import (
	"strings"

	"github.com/spf13/viper"
)

const redacted = "********"

// sensitiveKeys are leaf names never printed by `scout am show`.
var sensitiveKeys = map[string]bool{
	"token":   true,
	"api_key": true,
}

// SettingsForDisplay returns the merged settings tree with secrets masked.
func SettingsForDisplay(v *viper.Viper) map[string]any {
	return redact(v.AllSettings())
}

func redact(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, val := range m {
		switch typed := val.(type) {
		case map[string]any:
			out[k] = redact(typed)
		default:
			if sensitiveKeys[strings.ToLower(k)] && val != "" {
				out[k] = redacted
				continue
			}
			out[k] = val
		}
	}
	return out
}
