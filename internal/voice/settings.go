package voice

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CarrierPlaceholder is replaced by the token inside a carrier template.
const CarrierPlaceholder = "{token}"

// Settings are the tunables that can change while the resolver is running.
type Settings struct {
	// Language is the BCP 47 tag sent to the remote service and used to pick
	// a local voice, e.g. "fr-FR".
	Language string

	// CarrierTemplate wraps isolated words before remote synthesis so that
	// the voice gets natural prosody, e.g. "Le mot {token}.". Empty disables
	// carrier phrases.
	CarrierTemplate string

	// CarrierMaxRunes limits carrier phrases to words of at most this many
	// runes. Zero applies the template to every single-word token.
	CarrierMaxRunes int

	// LocalVoiceHint names a preferred local voice by ID or name.
	LocalVoiceHint string

	// Denylist excludes local voices by ID or name (case-insensitive) when
	// falling back to any voice of the configured language. An explicitly
	// hinted voice is never excluded.
	Denylist []string
}

// DefaultSettings returns French with no carrier phrase and no denylist.
func DefaultSettings() Settings {
	return Settings{Language: "fr-FR"}
}

// Equal reports whether s and o hold the same values.
func (s Settings) Equal(o Settings) bool {
	return s.Language == o.Language &&
		s.CarrierTemplate == o.CarrierTemplate &&
		s.CarrierMaxRunes == o.CarrierMaxRunes &&
		s.LocalVoiceHint == o.LocalVoiceHint &&
		slices.Equal(s.Denylist, o.Denylist)
}

// synthesisText returns the text sent to the remote service for token.
// Multi-word tokens are sent as-is.
func (s Settings) synthesisText(token string) string {
	token = strings.TrimSpace(token)
	if s.CarrierTemplate == "" || strings.ContainsFunc(token, unicode.IsSpace) {
		return token
	}
	if s.CarrierMaxRunes > 0 && utf8.RuneCountInString(token) > s.CarrierMaxRunes {
		return token
	}
	return strings.ReplaceAll(s.CarrierTemplate, CarrierPlaceholder, token)
}

func (s Settings) denied(id, name string) bool {
	for _, d := range s.Denylist {
		if strings.EqualFold(d, id) || strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}
