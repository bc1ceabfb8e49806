// config_utils.go - Utility-Funktionen und Export fuer Konfiguration
//
// Dieses Modul enthaelt:
// - BoolWithDefault/Bool: Boolean-Getter mit Default-Wert
// - Uint/Uint64: Integer-Getter mit Default-Wert
// - EnvVar: Struktur fuer Environment-Variablen-Info
// - AsMap: Gibt alle Konfigurationen als Map zurueck
// - Values: Gibt alle Konfigurationswerte als String-Map zurueck
package envconfig

import (
	"fmt"
	"log/slog"
	"strconv"
)

// =============================================================================
// Boolean-Getter
// =============================================================================

// BoolWithDefault gibt eine Funktion zurueck, die einen Bool mit Default-Wert liest
func BoolWithDefault(k string) func(defaultValue bool) bool {
	return func(defaultValue bool) bool {
		if s := Var(k); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return true
			}
			return b
		}
		return defaultValue
	}
}

// Bool gibt eine Funktion zurueck, die einen Bool liest (Default: false)
func Bool(k string) func() bool {
	withDefault := BoolWithDefault(k)
	return func() bool {
		return withDefault(false)
	}
}

// =============================================================================
// Integer-Getter
// =============================================================================

// Uint gibt eine Funktion zurueck, die einen uint mit Default-Wert liest
func Uint(key string, defaultValue uint) func() uint {
	return func() uint {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return uint(n)
			}
		}
		return defaultValue
	}
}

// Uint64 gibt eine Funktion zurueck, die einen uint64 mit Default-Wert liest
func Uint64(key string, defaultValue uint64) func() uint64 {
	return func() uint64 {
		if s := Var(key); s != "" {
			if n, err := strconv.ParseUint(s, 10, 64); err != nil {
				slog.Warn("invalid environment variable, using default", "key", key, "value", s, "default", defaultValue)
			} else {
				return n
			}
		}
		return defaultValue
	}
}

// =============================================================================
// Export-Strukturen und -Funktionen
// =============================================================================

// EnvVar repraesentiert eine Environment-Variable mit Metadaten
type EnvVar struct {
	Name        string
	Value       any
	Description string
}

// AsMap gibt alle Konfigurationen als Map zurueck
// Enthaelt Namen, aktuelle Werte und Beschreibungen
func AsMap() map[string]EnvVar {
	return map[string]EnvVar{
		"OKK_DEBUG":           {"OKK_DEBUG", LogLevel(), "Show additional debug information (e.g. OKK_DEBUG=1)"},
		"OKK_BACKEND":         {"OKK_BACKEND", Backend(), "Accelerator backend to use (default \"sim\")"},
		"OKK_LOCAL_MEM_SIZE":  {"OKK_LOCAL_MEM_SIZE", LocalMemSize(), "Scratchpad bytes per lane (default 524288)"},
		"OKK_NPU_NUM":         {"OKK_NPU_NUM", NPUNum(), "Number of parallel lanes (default 64)"},
		"OKK_ALIGN_BYTES":     {"OKK_ALIGN_BYTES", AlignBytes(), "Alignment of padded layouts in bytes (default 128)"},
		"OKK_GLOBAL_MEM_SIZE": {"OKK_GLOBAL_MEM_SIZE", GlobalMemSize(), "Off-chip memory of the simulator in bytes (default 1GiB)"},
		"OKK_SLOTS":           {"OKK_SLOTS", Slots(), "Buffer slots per pipelined role (default 2)"},
		"OKK_MAX_ROW_WIDTH":   {"OKK_MAX_ROW_WIDTH", MaxRowWidth(), "Row width used to reshape flat buffers (default 32)"},
		"OKK_NO_PIPELINE":     {"OKK_NO_PIPELINE", NoPipeline(), "Issue tiles sequentially without overlap windows"},
		"OKK_HAZARD_CHECK":    {"OKK_HAZARD_CHECK", HazardCheck(true), "Check overlap windows for engine hazards (default true)"},
	}
}

// Values gibt alle Konfigurationswerte als String-Map zurueck
func Values() map[string]string {
	vals := make(map[string]string)
	for k, v := range AsMap() {
		vals[k] = fmt.Sprintf("%v", v.Value)
	}
	return vals
}
