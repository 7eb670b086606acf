package library

import (
	"strings"

	"github.com/nbd-wtf/go-nostr"
)

// WriteRelaysFromTags extracts the write-capable relay declarations from a
// kind 10002 relay list event. Declarations look like
// ["r", "wss://relay.example.com", "write"], with "relay" accepted as a
// legacy tag name. An absent marker means the relay is used for both reading
// and writing; "read"/"r" entries are excluded.
func WriteRelaysFromTags(e nostr.Event) (r []string) {
	for _, tag := range e.Tags {
		if len(tag) < 2 {
			continue
		}
		if tag[0] != "r" && tag[0] != "relay" {
			continue
		}
		marker := ""
		if len(tag) >= 3 {
			marker = strings.ToLower(strings.TrimSpace(tag[2]))
		}
		switch marker {
		case "", "write", "w":
			r = append(r, tag[1])
		}
	}
	return
}
