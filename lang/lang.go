// Package lang defines the language tag type shared by participant
// metadata, provider adapters, and the Translation Buffer.
package lang

import (
	"fmt"
	"log/slog"
)

// Tag identifies a spoken language by its BCP-47-style code. The set of
// recognized tags is closed but extensible via Register, so a deployment
// can add languages without a code change.
type Tag string

const (
	English Tag = "en"
	Spanish Tag = "es"
	French  Tag = "fr"
	Yoruba  Tag = "yo"
	Hausa   Tag = "ha"
	Igbo    Tag = "ig"
)

var registered = map[Tag]bool{
	English: true,
	Spanish: true,
	French:  true,
	Yoruba:  true,
	Hausa:   true,
	Igbo:    true,
}

// Register adds a language tag to the recognized set. Intended to be called
// from an operator's init code or configuration loader, never from a hot
// path.
func Register(t Tag) {
	registered[t] = true
}

// Valid reports whether t has been registered.
func Valid(t Tag) bool {
	return registered[t]
}

// Parse validates and returns t as a Tag, or an error if it is not
// registered.
func Parse(s string) (Tag, error) {
	t := Tag(s)
	if !Valid(t) {
		return "", fmt.Errorf("lang: unrecognized tag %q", s)
	}
	return t, nil
}

// Pair identifies the (source, target) language pair a Pipeline translates
// between. Two pairs are equal only if both sides match; a pair where
// Source == Target never needs a Pipeline (spec: listeners don't hear
// same-language speakers through a pipeline).
type Pair struct {
	Source Tag
	Target Tag
}

func (p Pair) String() string {
	return fmt.Sprintf("%s->%s", p.Source, p.Target)
}

// LogValue implements slog.LogValuer so a Pair can be passed directly to
// o11y.Logger without call sites repeating "source"/"target" field names.
func (p Pair) LogValue() slog.Value {
	return slog.StringValue(p.String())
}

// NeedsTranslation reports whether a pipeline must exist for this pair.
func (p Pair) NeedsTranslation() bool {
	return p.Source != p.Target
}
