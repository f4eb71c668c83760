package wakeword

import "testing"

func TestDetect(t *testing.T) {
	m := New(nil)

	t.Run("exact_match", func(t *testing.T) {
		r := m.Detect("Hey Mentra")
		if !r.Matched {
			t.Fatal("expected match")
		}
		if r.Tail != "" {
			t.Errorf("Tail = %q, want empty", r.Tail)
		}
	})

	t.Run("match_with_trailing_query", func(t *testing.T) {
		r := m.Detect("Hey Mentra what time is it")
		if !r.Matched {
			t.Fatal("expected match")
		}
		if r.Tail != "what time is it" {
			t.Errorf("Tail = %q, want %q", r.Tail, "what time is it")
		}
	})

	t.Run("tolerant_to_internal_whitespace", func(t *testing.T) {
		r := m.Detect("h e y  m e n t r a what's up")
		if !r.Matched {
			t.Fatal("expected match despite extra whitespace")
		}
		if r.Tail != "what's up" {
			t.Errorf("Tail = %q, want %q", r.Tail, "what's up")
		}
	})

	t.Run("no_match_without_wake_word", func(t *testing.T) {
		r := m.Detect("what time is it")
		if r.Matched {
			t.Fatal("expected no match")
		}
	})

	t.Run("truncated_last_word_at_end_of_input_matches", func(t *testing.T) {
		r := m.Detect("hey mentr")
		if !r.Matched {
			t.Fatal("expected the truncated wake word to still be detected")
		}
		if r.Tail != "" {
			t.Errorf("Tail = %q, want empty", r.Tail)
		}
	})

	t.Run("truncated_word_mid_sentence_does_not_match", func(t *testing.T) {
		r := m.Detect("hey mentr tell me a joke")
		if r.Matched {
			t.Fatal("truncated match should only fire at end of input")
		}
	})
}

func TestStripResidue(t *testing.T) {
	m := New(nil)

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"residue_with_comma", "a, how much is the ticket", "how much is the ticket"},
		{"no_residue_present", "how much is the ticket", "how much is the ticket"},
		{"longer_fragment", "ntra, what's the time", "what's the time"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.StripResidue(tt.in)
			if got != tt.want {
				t.Errorf("StripResidue(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRemoveWakeWord(t *testing.T) {
	m := New(nil)

	if got := m.RemoveWakeWord("Hey Mentra what time is it"); got != "what time is it" {
		t.Errorf("got %q, want %q", got, "what time is it")
	}
	if got := m.RemoveWakeWord("what time is it"); got != "what time is it" {
		t.Errorf("unchanged text mutated: got %q", got)
	}
}

func TestClassifiers(t *testing.T) {
	if !IsVisionQuery("what is this in front of me") {
		t.Error("expected vision query")
	}
	if IsVisionQuery("what time is it") {
		t.Error("did not expect vision query")
	}
	if !IsWeatherQuery("what's the weather like") {
		t.Error("expected weather query")
	}
	if !NeedsLocation("what's the weather like") {
		t.Error("weather queries need location")
	}
	if NeedsGeocoding("what's the weather like") {
		t.Error("bare weather query without a preposition should not need geocoding")
	}
	if !NeedsGeocoding("what's the weather in Tokyo") {
		t.Error("weather query with 'in' should need geocoding")
	}
	if !NeedsGeocoding("what's nearby") {
		t.Error("location queries always need geocoding")
	}
}
