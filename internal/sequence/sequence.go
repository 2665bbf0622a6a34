// Package sequence renders an ordered event window into the textual
// representation the sequence classifier was trained on.
//
// The record format and the benign-carrier placeholder are part of the
// pretrained model's vocabulary and must be preserved byte-for-byte; do
// not "clean up" the encoding without retraining the model.
package sequence

import (
	"fmt"
	"strings"

	"github.com/nbelghith/authwatch/internal/events"
)

// Placeholder substituted for locale and device values the model treats
// as benign carriers.
const Placeholder = "Synth_B9"

var benignLocales = map[string]bool{
	"France":  true,
	"Tunisia": true,
	"USA":     true,
	"Unknown": true,
}

var benignDevices = map[string]bool{
	"Desktop": true,
	"Mobile":  true,
	"Unknown": true,
}

// Build renders the window into the full sequence text and the record for
// the chronologically last event. An empty window yields two empty
// strings; callers treat that as insufficient signal.
func Build(window []*events.LoginEvent) (full, last string) {
	if len(window) == 0 {
		return "", ""
	}

	records := make([]string, 0, len(window))
	var prev *events.LoginEvent
	for _, ev := range window {
		rec := record(ev, prev)
		records = append(records, rec)
		last = rec
		prev = ev
	}
	return strings.Join(records, " "), last
}

func record(ev, prev *events.LoginEvent) string {
	identity := strings.ReplaceAll(ev.Identity, " ", "_")
	locale := orUnknown(ev.Locale)
	device := orUnknown(ev.Device)
	agent := orUnknown(ev.Agent)

	// Context change is relative to the immediately preceding event in the
	// window; the first event has no predecessor and is always False.
	contextChange := false
	if prev != nil {
		contextChange = ev.Origin != prev.Origin ||
			locale != orUnknown(prev.Locale) ||
			device != orUnknown(prev.Device)
	}

	if benignLocales[locale] {
		locale = Placeholder
	}
	if benignDevices[device] {
		device = Placeholder
	}

	return fmt.Sprintf("(STATUS=%s USERID=%s IP=%s COUNTRY=%s DEVICE=%s BROWSER=%s CONTEXT_CHANGE=%s)",
		pyBool(ev.Succeeded), identity, ev.Origin, locale, device, agent, pyBool(contextChange))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// pyBool matches the capitalization the model vocabulary uses.
func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
