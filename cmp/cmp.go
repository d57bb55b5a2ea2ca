// Package cmp holds the knowledge about individual consent management
// platforms that does not fit the selector catalog: the hardcoded detectors
// for CMPs living in iframes or needing a distinct notice / preferences
// split, their button tables, and the per-CMP timing used while opening and
// reading preference modals.
package cmp

import (
	"strings"
	"time"
)

// Normalize maps a CMP id to its table key: lower case, "-" separators, no
// "-cmp" suffix. "Sourcepoint_CMP" and "sourcepoint-cmp" both become
// "sourcepoint".
func Normalize(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	id = strings.ReplaceAll(id, "_", "-")
	return strings.TrimSuffix(id, "-cmp")
}

// Timing is how long a CMP needs for its UI to settle.
type Timing struct {
	ModalOpen time.Duration
	Animation time.Duration
	LazyLoad  time.Duration
}

func timing(open, anim, lazy int) Timing {
	return Timing{
		ModalOpen: time.Duration(open) * time.Millisecond,
		Animation: time.Duration(anim) * time.Millisecond,
		LazyLoad:  time.Duration(lazy) * time.Millisecond,
	}
}

var timings = map[string]Timing{
	"didomi":       timing(2000, 1500, 1000),
	"onetrust":     timing(1000, 800, 800),
	"cookiebot":    timing(1500, 1000, 1000),
	"axeptio":      timing(2500, 2000, 1500),
	"sourcepoint":  timing(1500, 1200, 1000),
	"quantcast":    timing(1500, 1000, 1000),
	"usercentrics": timing(1800, 1200, 1000),
	"sfbx":         timing(3000, 3000, 2000),
}

// DefaultTiming applies to CMPs without their own entry.
var DefaultTiming = timing(3000, 1500, 1000)

// TimingFor returns the timing of a CMP id, normalized first.
func TimingFor(id string) Timing {
	if t, ok := timings[Normalize(id)]; ok {
		return t
	}
	return DefaultTiming
}

var iframeHosts = map[string]string{
	"sourcepoint": "[id*='sp_message_iframe']",
	"trustarc":    "#truste_cm_frame",
	"onetrust":    "#onetrust-consent-sdk iframe",
	"sfbx":        "#appconsent > iframe",
}

// IframeHost returns the selector of the iframe a CMP renders its UI in, or
// "" when it renders in the page.
func IframeHost(id string) string {
	return iframeHosts[Normalize(id)]
}
