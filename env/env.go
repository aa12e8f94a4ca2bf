// Package env resolves the process-wide environment variables the
// runtime entry point reads once at startup (spec section 6), grounded
// on original_source/hollywood/src/env.rs. Configuration is treated as
// a read-once input captured at startup; the core runtime does not
// re-read these at steady state (spec section 9, "Global environment
// state").
package env

import (
	"fmt"
	"os"
	"strings"
)

// SystemVar is the environment variable naming the active system.
const SystemVar = "HOLLYWOOD_SYSTEM"

// System returns the value of HOLLYWOOD_SYSTEM, or an error if unset.
func System() (string, error) {
	v := os.Getenv(SystemVar)
	if v == "" {
		return "", fmt.Errorf("env: %s is not set", SystemVar)
	}
	return v, nil
}

// SystemNATSURIVar returns the name of the bus-URI environment variable
// for the given system: HOLLYWOOD_SYSTEM_{UPPER(system)}_NATS_URI.
func SystemNATSURIVar(system string) string {
	return fmt.Sprintf("HOLLYWOOD_SYSTEM_%s_NATS_URI", strings.ToUpper(system))
}

// SystemNATSURI returns the bus URI configured for system.
func SystemNATSURI(system string) (string, error) {
	name := SystemNATSURIVar(system)
	v := os.Getenv(name)
	if v == "" {
		return "", fmt.Errorf("env: %s is not set", name)
	}
	return v, nil
}

// Resolve reads both HOLLYWOOD_SYSTEM and its bus URI, the pair the
// runtime entry point needs at step 1 of spec section 4.8.
func Resolve() (system, busURI string, err error) {
	system, err = System()
	if err != nil {
		return "", "", err
	}
	busURI, err = SystemNATSURI(system)
	if err != nil {
		return "", "", err
	}
	return system, busURI, nil
}
