package run

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// stopNamespace is the UUID v5 namespace for stable stop identifiers.
// Derived IDs are a pure function of the stop line text and its occurrence
// ordinal, so re-parsing unchanged text always yields the same IDs and
// reordering lines preserves them. Editing a line produces a new stop
// identity, which deliberately resets any tracking state for that stop.
var stopNamespace = uuid.MustParse("7b9a7f2e-4c1d-4a8e-9b63-2f0d8e5a1c44")

var bookingTimeRe = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// Stop is one ordered delivery/collection point parsed from a run's
// stop-list text.
type Stop struct {
	// ID is the stable identifier tracking state is keyed by.
	ID string

	// Index is the 0-based position in the parsed list. Used for ordering
	// and display only; it shifts when the raw text is edited, the ID does not.
	Index int

	// Postcode is the normalized destination token.
	Postcode string

	// BookingTime is an optional "HH:MM" time window hint. Empty when absent.
	BookingTime string

	// Reference is an optional free-text reference (order number, contact).
	Reference string
}

// ParseStops parses raw stop-list text into an ordered stop list.
//
// One stop per line, comma-separated fields: the first field is the postcode,
// an optional "HH:MM" field is the booking time, anything else joins the
// reference. Blank lines and lines starting with '#' are skipped.
func ParseStops(raw string) []Stop {
	var stops []Stop
	occurrences := make(map[string]int)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		postcode := NormalizePostcode(fields[0])
		if postcode == "" {
			continue
		}

		stop := Stop{
			Index:    len(stops),
			Postcode: postcode,
		}

		var refParts []string
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if stop.BookingTime == "" && bookingTimeRe.MatchString(f) {
				stop.BookingTime = f
				continue
			}
			refParts = append(refParts, f)
		}
		stop.Reference = strings.Join(refParts, ", ")

		canonical := canonicalLine(stop)
		n := occurrences[canonical]
		occurrences[canonical] = n + 1
		stop.ID = uuid.NewSHA1(stopNamespace, []byte(canonical+"#"+strconv.Itoa(n))).String()

		stops = append(stops, stop)
	}

	return stops
}

// canonicalLine builds the identity key for a stop. Index is excluded so that
// reordering lines keeps IDs stable; the occurrence ordinal disambiguates
// repeated identical lines (same postcode visited twice).
func canonicalLine(s Stop) string {
	return s.Postcode + "|" + s.BookingTime + "|" + s.Reference
}

// NormalizePostcode uppercases and collapses whitespace in a postcode token.
func NormalizePostcode(raw string) string {
	return strings.ToUpper(strings.Join(strings.Fields(raw), " "))
}

// StopByID returns the stop with the given stable ID, or nil.
func StopByID(stops []Stop, id string) *Stop {
	for i := range stops {
		if stops[i].ID == id {
			return &stops[i]
		}
	}
	return nil
}

// NextUncompleted returns the lowest-index stop whose ID is not in the
// completed set, or nil when every stop is done.
func NextUncompleted(stops []Stop, completed map[string]struct{}) *Stop {
	for i := range stops {
		if _, done := completed[stops[i].ID]; !done {
			return &stops[i]
		}
	}
	return nil
}

// Remaining returns the ordered stops whose IDs are not in the completed set.
func Remaining(stops []Stop, completed map[string]struct{}) []Stop {
	var out []Stop
	for _, s := range stops {
		if _, done := completed[s.ID]; !done {
			out = append(out, s)
		}
	}
	return out
}
