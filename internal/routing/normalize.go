package routing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/chatdesk/chatdesk/internal/transport"
)

var validKinds = map[transport.MessageKind]struct{}{
	transport.KindChat:     {},
	transport.KindAudio:    {},
	transport.KindPTT:      {},
	transport.KindVideo:    {},
	transport.KindImage:    {},
	transport.KindDocument: {},
	transport.KindVCard:    {},
	transport.KindSticker:  {},
	transport.KindLocation: {},
}

// isValidMessage filters broadcast/status traffic and unsupported event
// kinds before any processing.
func isValidMessage(evt transport.MessageEvent) bool {
	if evt.Broadcast {
		return false
	}
	_, ok := validKinds[evt.Kind]
	return ok
}

// locationBody synthesizes a text body for a location event so storage and
// UIs can render it without special-casing the media pipeline:
// "<static map data>|<maps url>|<description>".
func locationBody(evt transport.MessageEvent) string {
	mapsURL := fmt.Sprintf("https://maps.google.com/maps?q=%v%%2C%v&z=17", evt.Latitude, evt.Longitude)
	description := evt.LocationName
	if description == "" {
		description = fmt.Sprintf("%v, %v", evt.Latitude, evt.Longitude)
	}
	return "data:image/png;base64," + evt.LocationThumb + "|" + mapsURL + "|" + description
}

// vcardEntry is one phone number found in a received contact card.
type vcardEntry struct {
	Number string
	Name   string
}

// parseVCard extracts chat-capable numbers from a vCard body. Numbers are
// carried in TEL lines as "waid=<number>"; the display name comes from FN.
func parseVCard(body string) []vcardEntry {
	var name string
	var entries []vcardEntry
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "FN:"); ok {
			name = strings.TrimSpace(rest)
			continue
		}
		idx := strings.Index(line, "waid=")
		if idx < 0 {
			continue
		}
		number := line[idx+len("waid="):]
		if end := strings.IndexAny(number, ":;"); end >= 0 {
			number = number[:end]
		}
		number = strings.TrimSpace(number)
		if number != "" {
			entries = append(entries, vcardEntry{Number: number, Name: name})
		}
	}
	return entries
}

// parseMenuSelection interprets body as a 1-based menu index. It returns
// false for anything that is not an integer within [1, optionCount].
func parseMenuSelection(body string, optionCount int) (int, bool) {
	choice, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || choice < 1 || choice > optionCount {
		return 0, false
	}
	return choice, true
}
