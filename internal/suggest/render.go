package suggest

import (
	"fmt"
	"strings"

	"github.com/kiranshivaraju/confsight/internal/analysis"
	"github.com/kiranshivaraju/confsight/pkg/models"
)

// packageName extracts the package name from a namespaced config key.
func packageName(configKey string) (string, bool) {
	if strings.HasPrefix(configKey, analysis.PkgKeyPrefix) {
		return strings.TrimPrefix(configKey, analysis.PkgKeyPrefix), true
	}
	return "", false
}

func envVarName(configKey string) (string, bool) {
	if strings.HasPrefix(configKey, analysis.EnvVarPrefix) {
		return strings.TrimPrefix(configKey, analysis.EnvVarPrefix), true
	}
	return "", false
}

// renderSuggestion turns one mined pattern into a human-readable sentence.
// The phrasing depends on the attribute type.
func renderSuggestion(p *models.ConfigPattern) string {
	pct := p.ConfidencePct
	switch {
	case p.ConfigKey == analysis.KeyPythonVer:
		return fmt.Sprintf("%d%% of similar errors occurred with Python %s. Consider testing with a different Python version.", pct, p.ConfigValue)
	case p.ConfigKey == analysis.KeyMachineArch:
		return fmt.Sprintf("%d%% of similar errors occurred on %s machines. This may be an architecture-specific issue.", pct, p.ConfigValue)
	case p.ConfigKey == analysis.KeyOSInfo:
		return fmt.Sprintf("%d%% of similar errors occurred on %s. This may be an OS-specific issue.", pct, p.ConfigValue)
	default:
		if name, ok := packageName(p.ConfigKey); ok {
			return fmt.Sprintf("%d%% of similar errors occurred with %s version %s. Consider upgrading or downgrading %s.", pct, name, p.ConfigValue, name)
		}
		if name, ok := envVarName(p.ConfigKey); ok {
			return fmt.Sprintf("%d%% of similar errors occurred with environment variable %s set to %q. Check whether this setting is correct.", pct, name, p.ConfigValue)
		}
		return fmt.Sprintf("%d%% of similar errors occurred with %s=%s.", pct, p.ConfigKey, p.ConfigValue)
	}
}
