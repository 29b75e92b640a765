// Package verbose gates high-volume debug output (raw datagrams, raw
// sidecar/helper lines) behind a process-global flag so the hot path
// stays silent unless someone is actively debugging wire traffic.
package verbose

import "log"

var enabled bool

// SetEnabled sets the global verbose flag.
func SetEnabled(enable bool) {
	enabled = enable
}

// IsEnabled reports whether verbose output is on.
func IsEnabled() bool {
	return enabled
}

// Printf prints when verbose output is on.
func Printf(format string, args ...interface{}) {
	if enabled {
		log.Printf("[VERBOSE] "+format, args...)
	}
}

// maxDumpBytes truncates payload dumps so a single oversized datagram
// cannot flood the console.
const maxDumpBytes = 256

// Payload dumps one wire payload with a direction tag ("udp rx",
// "bridge tx", ...), truncated to maxDumpBytes.
func Payload(tag string, payload []byte) {
	if !enabled {
		return
	}
	if len(payload) > maxDumpBytes {
		log.Printf("[VERBOSE] %s (%d bytes, truncated): %s...", tag, len(payload), payload[:maxDumpBytes])
		return
	}
	log.Printf("[VERBOSE] %s: %s", tag, payload)
}
