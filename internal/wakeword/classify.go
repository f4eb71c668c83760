package wakeword

import "strings"

var (
	visionKeywords = []string{
		"see", "look", "picture", "photo", "camera", "show me", "what is this",
		"what's this", "identify", "read this", "this sign", "what am i looking at",
	}
	locationKeywords = []string{
		"near", "nearby", "location", "where am i", "directions", "distance",
		"close by", "around here", "address",
	}
	weatherKeywords = []string{
		"weather", "temperature", "forecast", "rain", "snow", "sunny", "cold", "hot",
	}
)

// IsVisionQuery reports whether q asks about something the wearer is looking
// at, implying a photo capture is needed.
func IsVisionQuery(q string) bool {
	return containsAny(q, visionKeywords)
}

// IsWeatherQuery reports whether q is a weather question.
func IsWeatherQuery(q string) bool {
	return containsAny(q, weatherKeywords)
}

// IsLocationQuery reports whether q explicitly asks about place or distance.
func IsLocationQuery(q string) bool {
	return containsAny(q, locationKeywords)
}

// NeedsLocation reports whether answering q benefits from the wearer's
// current coordinates — true for explicit location queries and for weather
// (which always needs at least a current fix).
func NeedsLocation(q string) bool {
	return IsLocationQuery(q) || IsWeatherQuery(q)
}

// NeedsGeocoding reports whether q requires resolving coordinates to a place
// name/timezone rather than just raw lat/lng. Location queries always need
// it; weather only needs it when a place is named via "in"/"at".
func NeedsGeocoding(q string) bool {
	if IsLocationQuery(q) {
		return true
	}
	if IsWeatherQuery(q) {
		return containsWord(q, "in") || containsWord(q, "at")
	}
	return false
}

func containsAny(q string, keywords []string) bool {
	ql := strings.ToLower(q)
	for _, k := range keywords {
		if strings.Contains(ql, k) {
			return true
		}
	}
	return false
}

func containsWord(q, word string) bool {
	ql := strings.ToLower(q)
	for _, tok := range strings.FieldsFunc(ql, func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		if tok == word {
			return true
		}
	}
	return false
}
