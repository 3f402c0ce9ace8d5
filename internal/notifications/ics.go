package notifications

import (
	"fmt"
	"strings"
	"time"
)

const icsTimeLayout = "20060102T150405Z"

// icsEvent describes one calendar entry for a confirmed pickup.
type icsEvent struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	Organizer   string
}

// render produces an RFC 5545 invite. Lines end with CRLF; values are
// escaped so addresses with commas survive.
func (e icsEvent) render() string {
	var b strings.Builder
	writeLine := func(line string) {
		b.WriteString(line)
		b.WriteString("\r\n")
	}

	writeLine("BEGIN:VCALENDAR")
	writeLine("VERSION:2.0")
	writeLine("PRODID:-//LuxTransfer//Booking//EN")
	writeLine("METHOD:REQUEST")
	writeLine("BEGIN:VEVENT")
	writeLine("UID:" + e.UID)
	writeLine("DTSTAMP:" + time.Now().UTC().Format(icsTimeLayout))
	writeLine("DTSTART:" + e.Start.UTC().Format(icsTimeLayout))
	writeLine("DTEND:" + e.End.UTC().Format(icsTimeLayout))
	writeLine("SUMMARY:" + escapeICS(e.Summary))
	if e.Location != "" {
		writeLine("LOCATION:" + escapeICS(e.Location))
	}
	if e.Description != "" {
		writeLine("DESCRIPTION:" + escapeICS(e.Description))
	}
	if e.Organizer != "" {
		writeLine(fmt.Sprintf("ORGANIZER;CN=LuxTransfer:mailto:%s", e.Organizer))
	}
	writeLine("END:VEVENT")
	writeLine("END:VCALENDAR")
	return b.String()
}

func escapeICS(s string) string {
	r := strings.NewReplacer(
		"\\", "\\\\",
		";", "\\;",
		",", "\\,",
		"\n", "\\n",
	)
	return r.Replace(s)
}
