//go:build !windows && !darwin

package config

// defaultBridgeTarget returns the platform-appropriate sidecar target
// when bridge.target is not set in config.
func defaultBridgeTarget() string { return "ds4" }

// defaultBridgeExe returns the platform-appropriate sidecar executable
// name when bridge.exe is not set in config.
func defaultBridgeExe() string { return "wheelerhost-uinput-sidecar" }
