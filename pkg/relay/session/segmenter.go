package session

import (
	"strings"
	"unicode/utf8"
)

// terminalMarks are the sentence-terminal punctuation marks for spoken
// Japanese. A fragment is speakable once it ends in one of these.
const terminalMarks = "。！？"

func isTerminalMark(r rune) bool {
	return strings.ContainsRune(terminalMarks, r)
}

// Segmenter turns an append-only token stream into complete sentence
// fragments sized for incremental speech synthesis. It also accumulates the
// full response text for the conversation history.
//
// Leading terminal marks and runs of consecutive marks never produce an empty
// or punctuation-only fragment: they stay buffered and are emitted glued to
// the surrounding sentence. The concatenation of everything returned by Push
// plus the Flush remainder equals the concatenation of all inputs exactly.
type Segmenter struct {
	buf  string
	full strings.Builder
}

func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Push appends one increment and returns the complete sentences it unlocked,
// in order. An increment may unlock zero, one, or several sentences.
func (g *Segmenter) Push(increment string) []string {
	if increment == "" {
		return nil
	}
	g.full.WriteString(increment)
	g.buf += increment

	var out []string
	for {
		sentence, rest, ok := cutSentence(g.buf)
		if !ok {
			break
		}
		out = append(out, sentence)
		g.buf = rest
	}
	return out
}

// Flush returns whatever remains buffered, possibly the empty string. The
// caller sends it as the terminal fragment of the generation.
func (g *Segmenter) Flush() string {
	remainder := g.buf
	g.buf = ""
	return remainder
}

// Full returns the accumulated response text across all pushed increments.
func (g *Segmenter) Full() string {
	return g.full.String()
}

// cutSentence cuts the leading complete sentence off s: everything up to and
// including the first terminal mark that follows at least one non-mark rune,
// extended over any immediately consecutive terminal marks. ok is false when
// no such boundary exists yet.
func cutSentence(s string) (sentence, rest string, ok bool) {
	lead := 0
	for lead < len(s) {
		r, size := utf8.DecodeRuneInString(s[lead:])
		if !isTerminalMark(r) {
			break
		}
		lead += size
	}
	if lead >= len(s) {
		return "", "", false
	}

	idx := strings.IndexAny(s[lead:], terminalMarks)
	if idx < 0 {
		return "", "", false
	}

	cut := lead + idx
	for cut < len(s) {
		r, size := utf8.DecodeRuneInString(s[cut:])
		if !isTerminalMark(r) {
			break
		}
		cut += size
	}
	return s[:cut], s[cut:], true
}
