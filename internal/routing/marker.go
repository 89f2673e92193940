package routing

import "strings"

// engineMarker is the zero-width sentinel prefixed to every automated reply.
// Multi-device accounts mirror self-sent messages back as inbound events;
// the prefix lets the listener recognize and drop its own output instead of
// replying to it in a loop. The sentinel is defined only here.
const engineMarker = "‎"

// TagEngineGenerated prefixes body with the engine marker. Tagging an already
// tagged body is a no-op.
func TagEngineGenerated(body string) string {
	if IsEngineGenerated(body) {
		return body
	}
	return engineMarker + body
}

// IsEngineGenerated reports whether body carries the engine marker.
func IsEngineGenerated(body string) bool {
	return strings.HasPrefix(body, engineMarker)
}
