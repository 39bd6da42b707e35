package engine

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/loreweave/loreweave/pkg/lore"
)

// RecursionBufferCap bounds the accumulated recursion buffer. When exceeded
// the buffer is tail-truncated and any partial leading rune is dropped.
const RecursionBufferCap = 1_000_000

// ScanContext carries the context-text fields an entry can opt into scanning
// via its match_* flags.
type ScanContext struct {
	PersonaDescription   string
	CharacterDescription string
	CharacterPersonality string
	CharacterDepthPrompt string
	Scenario             string
	CreatorNotes         string
}

// ScanInjection is scan-time injected text. Only injections marked Scannable
// participate in key matching.
type ScanInjection struct {
	Text      string
	Scannable bool
}

// scanBuffer assembles the effective scan text for each entry: the message
// window, opted-in context fields, scannable injections and the recursion
// buffer. Every segment is NFC-normalized so canonically equal text matches
// regardless of its byte encoding.
type scanBuffer struct {
	messages  []string // most recent first, already normalized
	context   ScanContext
	injected  string // scannable injections, newline-joined
	recursion string
}

func newScanBuffer(messages []string, injections []ScanInjection, context ScanContext) *scanBuffer {
	b := &scanBuffer{
		messages: make([]string, len(messages)),
		context: ScanContext{
			PersonaDescription:   norm.NFC.String(context.PersonaDescription),
			CharacterDescription: norm.NFC.String(context.CharacterDescription),
			CharacterPersonality: norm.NFC.String(context.CharacterPersonality),
			CharacterDepthPrompt: norm.NFC.String(context.CharacterDepthPrompt),
			Scenario:             norm.NFC.String(context.Scenario),
			CreatorNotes:         norm.NFC.String(context.CreatorNotes),
		},
	}
	for i, m := range messages {
		b.messages[i] = norm.NFC.String(m)
	}
	var scannable []string
	for _, inj := range injections {
		if inj.Scannable && strings.TrimSpace(inj.Text) != "" {
			scannable = append(scannable, norm.NFC.String(inj.Text))
		}
	}
	b.injected = strings.Join(scannable, "\n")
	return b
}

func (b *scanBuffer) hasRecursion() bool {
	return b.recursion != ""
}

// appendRecursion adds accepted entry content to the recursion buffer,
// enforcing the byte cap by keeping the newest tail.
func (b *scanBuffer) appendRecursion(contents []string) {
	for _, c := range contents {
		c = norm.NFC.String(c)
		if strings.TrimSpace(c) == "" {
			continue
		}
		if b.recursion == "" {
			b.recursion = c
		} else {
			b.recursion += "\n" + c
		}
	}
	if len(b.recursion) > RecursionBufferCap {
		tail := b.recursion[len(b.recursion)-RecursionBufferCap:]
		// Drop bytes of a rune the cut split in half.
		for len(tail) > 0 && !utf8.RuneStart(tail[0]) {
			tail = tail[1:]
		}
		b.recursion = tail
	}
}

// textFor builds the effective scan text for one entry. A depth <= 0 means
// the entry cannot match at all and yields empty text. includeRecursion is
// false on min-activation passes.
func (b *scanBuffer) textFor(e lore.Entry, depth int, includeRecursion bool) string {
	if depth <= 0 {
		return ""
	}
	if depth > len(b.messages) {
		depth = len(b.messages)
	}

	var segments []string
	appendSegment := func(s string) {
		if strings.TrimSpace(s) != "" {
			segments = append(segments, s)
		}
	}

	appendSegment(strings.Join(b.messages[:depth], "\n"))
	if e.MatchPersonaDescription {
		appendSegment(b.context.PersonaDescription)
	}
	if e.MatchCharacterDescription {
		appendSegment(b.context.CharacterDescription)
	}
	if e.MatchCharacterPersonality {
		appendSegment(b.context.CharacterPersonality)
	}
	if e.MatchCharacterDepthPrompt {
		appendSegment(b.context.CharacterDepthPrompt)
	}
	if e.MatchScenario {
		appendSegment(b.context.Scenario)
	}
	if e.MatchCreatorNotes {
		appendSegment(b.context.CreatorNotes)
	}
	appendSegment(b.injected)
	if includeRecursion {
		appendSegment(b.recursion)
	}

	return strings.Join(segments, "\n")
}
