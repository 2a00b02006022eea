package feeds

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/timegrid/internal/client/models"
)

// ParseICS extracts VEVENT blocks from an iCalendar body. Only the fields the
// calendar view needs are read: UID, SUMMARY, DTSTART and DTEND. Events
// without a UID or a parseable DTSTART are skipped rather than failing the
// whole feed.
func ParseICS(sourceID string, body []byte) ([]models.CalendarEvent, error) {
	lines, err := unfoldLines(body)
	if err != nil {
		return nil, fmt.Errorf("failed to read calendar body: %w", err)
	}

	var (
		events  []models.CalendarEvent
		current map[string]string
	)

	for _, line := range lines {
		switch {
		case line == "BEGIN:VEVENT":
			current = make(map[string]string)
		case line == "END:VEVENT":
			if e, ok := buildEvent(sourceID, current); ok {
				events = append(events, e)
			}
			current = nil
		case current != nil:
			name, value, ok := splitProperty(line)
			if ok {
				current[name] = value
			}
		}
	}

	return events, nil
}

// unfoldLines joins folded continuation lines (RFC 5545 section 3.1).
func unfoldLines(body []byte) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if (strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t")) && len(lines) > 0 {
			lines[len(lines)-1] += line[1:]
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// splitProperty separates "NAME;PARAM=X:value" into the bare property name
// and its value. Parameters are discarded.
func splitProperty(line string) (name, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	name = line[:idx]
	value = line[idx+1:]
	if p := strings.Index(name, ";"); p >= 0 {
		name = name[:p]
	}
	return strings.ToUpper(name), value, true
}

func buildEvent(sourceID string, props map[string]string) (models.CalendarEvent, bool) {
	uid := props["UID"]
	if uid == "" {
		return models.CalendarEvent{}, false
	}

	start, err := parseICSTime(props["DTSTART"])
	if err != nil {
		return models.CalendarEvent{}, false
	}

	end, err := parseICSTime(props["DTEND"])
	if err != nil {
		end = start
	}

	return models.CalendarEvent{
		ID:       uid,
		SourceID: sourceID,
		Title:    unescapeText(props["SUMMARY"]),
		Start:    start,
		End:      end,
	}, true
}

// parseICSTime accepts the three shapes feeds actually emit: UTC date-time,
// floating date-time and bare date.
func parseICSTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	for _, layout := range []string{"20060102T150405Z", "20060102T150405", "20060102"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported time value %q", value)
}

func unescapeText(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}
