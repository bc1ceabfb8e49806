// config.go - Haupt-Konfigurationsfunktionen fuer okkernel
//
// Dieses Modul enthaelt:
// - LogLevel: Gibt Log-Level zurueck (OKK_DEBUG)
// - Backend: Name des registrierten Backends (OKK_BACKEND)
// - Var: Liest eine Environment-Variable
//
// Weitere Konfigurationen sind ausgelagert:
// - config_features.go: Plattform-Konstanten und Pipeline-Parameter
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via OKK_DEBUG
// Werte: 0/false = INFO (Default), 1/true = DEBUG, 2 = TRACE
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("OKK_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Backend gibt den Namen des Beschleuniger-Backends zurueck
// Konfigurierbar via OKK_BACKEND
// Default: sim
func Backend() string {
	if s := Var("OKK_BACKEND"); s != "" {
		return s
	}

	return "sim"
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}
