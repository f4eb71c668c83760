// Package wakeword provides tolerant wake-phrase matching over live
// transcription text: whitespace-insensitive detection, classification of
// what a query needs (vision, location, geocoding, weather), and the residue
// handling that makes wake-word detection survive an utterance boundary
// landing mid-word.
package wakeword

import (
	"regexp"
	"strings"
)

// DefaultPhrases is the out-of-the-box wake phrase set.
var DefaultPhrases = []string{"hey mentra"}

type phrase struct {
	raw      string
	full     *regexp.Regexp
	trunc    *regexp.Regexp // matches the phrase with its last word truncated, anchored at end of string
	lastWord string
}

// Matcher detects one or more wake phrases inside live transcription text,
// tolerant of extra whitespace a streaming ASR engine may insert mid-word.
type Matcher struct {
	phrases []phrase
}

// New compiles a Matcher for the given wake phrases. Falls back to
// DefaultPhrases if phrases is empty.
func New(phrases []string) *Matcher {
	if len(phrases) == 0 {
		phrases = DefaultPhrases
	}
	m := &Matcher{}
	for _, p := range phrases {
		m.phrases = append(m.phrases, compile(p))
	}
	return m
}

func compile(p string) phrase {
	words := strings.Fields(p)
	if len(words) == 0 {
		return phrase{raw: p}
	}
	last := words[len(words)-1]

	full := "(?i)" + strings.Join(wordPatterns(words), `\s+`)

	// Truncated variant: every word but the last matches in full; the last
	// word may be cut short anywhere after its first character, as long as
	// the match runs to the end of the input. This is what lets a stream
	// that finalizes an utterance a syllable early still count as "heard".
	var truncAlts []string
	for k := 1; k < len(last); k++ {
		truncAlts = append(truncAlts, charGapPattern(last[:k]))
	}
	var truncPattern string
	if len(words) > 1 && len(truncAlts) > 0 {
		prefix := strings.Join(wordPatterns(words[:len(words)-1]), `\s+`)
		truncPattern = "(?i)" + prefix + `\s+(` + strings.Join(truncAlts, "|") + `)$`
	} else if len(truncAlts) > 0 {
		truncPattern = "(?i)(" + strings.Join(truncAlts, "|") + `)$`
	}

	ph := phrase{
		raw:      p,
		full:     regexp.MustCompile(full),
		lastWord: last,
	}
	if truncPattern != "" {
		ph.trunc = regexp.MustCompile(truncPattern)
	}
	return ph
}

func wordPatterns(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = charGapPattern(w)
	}
	return out
}

// charGapPattern builds a pattern that matches w with zero or more
// whitespace tolerated between any two of its characters.
func charGapPattern(w string) string {
	var b strings.Builder
	for i, r := range w {
		if i > 0 {
			b.WriteString(`\s*`)
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	return b.String()
}

// Result is the outcome of a Detect call.
type Result struct {
	Matched bool
	Index   int    // byte offset of the match in the original text
	Tail    string // text remaining after the match, trimmed of leading punctuation/whitespace
}

// Detect searches text for any configured wake phrase. It also accepts a
// phrase whose final word is truncated at the very end of the input — real
// ASR streams sometimes finalize an utterance a phoneme before the wake
// phrase's last letter lands, and the remainder shows up as residue at the
// start of the next utterance (see StripResidue).
func (m *Matcher) Detect(text string) Result {
	for _, p := range m.phrases {
		if p.full == nil {
			continue
		}
		if loc := p.full.FindStringIndex(text); loc != nil {
			return Result{Matched: true, Index: loc[0], Tail: trimResidue(text[loc[1]:])}
		}
	}
	for _, p := range m.phrases {
		if p.trunc == nil {
			continue
		}
		if loc := p.trunc.FindStringIndex(text); loc != nil {
			return Result{Matched: true, Index: loc[0], Tail: ""}
		}
	}
	return Result{}
}

// RemoveWakeWord strips a leading wake-phrase occurrence from text, returning
// text unchanged if none is found. Used on cumulative utterance text that may
// still carry the wake phrase that originally armed listening.
func (m *Matcher) RemoveWakeWord(text string) string {
	r := m.Detect(text)
	if !r.Matched {
		return text
	}
	return r.Tail
}

var residuePunct = regexp.MustCompile(`^[\s,.!?;:]+`)

func trimResidue(s string) string {
	return strings.TrimSpace(residuePunct.ReplaceAllString(s, ""))
}

// StripResidue removes a leading fragment of a wake phrase's last word left
// over when the word was split across an utterance boundary: any 1..len-1
// length suffix of the last word, immediately followed by punctuation and
// optional whitespace. For example with phrase "hey mentra", stripping
// "a, how much" yields "how much".
func (m *Matcher) StripResidue(text string) string {
	for _, p := range m.phrases {
		if p.lastWord == "" {
			continue
		}
		n := len(p.lastWord)
		for k := n - 1; k >= 1; k-- {
			suffix := p.lastWord[n-k:]
			re := regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(suffix) + `[,.!?;:]+\s*`)
			if re.MatchString(text) {
				return re.ReplaceAllString(text, "")
			}
		}
	}
	return text
}
