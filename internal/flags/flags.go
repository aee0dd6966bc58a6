// Package flags splits free-form command arguments into declared flags and
// the remaining argument text.
//
// A flag spec is a name with an optional trailing marker:
//
//	"a"    boolean, set when present
//	"a="   takes the next word as its value
//	"a=="  takes every word up to the next declared flag
//
// Flags may appear as -a, --a, or with an em or en dash. Value flags also
// accept --a=value. A bare "--" ends flag scanning; everything after it is
// passed through untouched.
package flags

import (
	"regexp"
	"sort"
	"strings"
)

// Kind is the value shape of a flag.
type Kind int

const (
	Bool Kind = iota
	Single
	Greedy
)

// Spec is a parsed flag declaration.
type Spec struct {
	Raw  string
	Name string
	Kind Kind
}

// ParseSpec reads the kind of a flag from its trailing marker.
func ParseSpec(raw string) Spec {
	switch {
	case strings.HasSuffix(raw, "=="):
		return Spec{Raw: raw, Name: strings.TrimRight(raw, "="), Kind: Greedy}
	case strings.HasSuffix(raw, "="):
		return Spec{Raw: raw, Name: strings.TrimRight(raw, "="), Kind: Single}
	default:
		return Spec{Raw: raw, Name: raw, Kind: Bool}
	}
}

// Value is the parse result for one declared flag.
type Value struct {
	Present bool
	Text    string
}

// Values maps declared flag names (without markers) to their results.
type Values map[string]Value

// Has reports whether the flag appeared in the input.
func (v Values) Has(name string) bool {
	return v[name].Present
}

// Get returns the flag's value and whether it appeared.
func (v Values) Get(name string) (string, bool) {
	val := v[name]
	return val.Text, val.Present
}

// Terminator ends flag scanning when it appears as a word.
const Terminator = "--"

var dashes = []string{"--", "-", "—", "–"}

var wordPattern = regexp.MustCompile(`\S+`)

// split breaks text into alternating whitespace and word tokens. The result
// always starts and ends with a (possibly empty) whitespace token, so
// joining the tokens reproduces the input exactly.
func split(text string) []string {
	locs := wordPattern.FindAllStringIndex(text, -1)
	tokens := make([]string, 0, 2*len(locs)+1)
	prev := 0
	for _, loc := range locs {
		tokens = append(tokens, text[prev:loc[0]], text[loc[0]:loc[1]])
		prev = loc[1]
	}
	return append(tokens, text[prev:])
}

// match reports whether token is a marker for spec, and returns any value
// written inline after an equals sign.
func match(token string, spec Spec) (inline string, ok bool) {
	for _, dash := range dashes {
		body, found := strings.CutPrefix(token, dash)
		if !found || body == "" {
			continue
		}
		if body == spec.Name || body == spec.Raw {
			return "", true
		}
		if spec.Kind == Bool {
			continue
		}
		if rest, found := strings.CutPrefix(body, spec.Raw); found {
			return rest, true
		}
		if rest, found := strings.CutPrefix(body, spec.Name+"="); found {
			return rest, true
		}
	}
	return "", false
}

type located struct {
	index  int
	spec   Spec
	inline string
}

// Parse extracts the flags declared in specs from text. It returns the flag
// values and the leftover argument text with the original whitespace
// between retained words preserved.
func Parse(text string, specs []string) (Values, string) {
	tokens := split(text)
	values := make(Values, len(specs))

	var tail []string
	for i, tok := range tokens {
		if tok != Terminator {
			continue
		}
		// The terminator and its surrounding whitespace collapse to a
		// single space in the remainder.
		if i+2 < len(tokens) {
			tail = tokens[i+2:]
		}
		tokens = tokens[:i]
		break
	}

	found := make([]located, 0, len(specs))
	for _, raw := range specs {
		spec := ParseSpec(raw)
		hit := false
		for i, tok := range tokens {
			if inline, ok := match(tok, spec); ok {
				found = append(found, located{index: i, spec: spec, inline: inline})
				hit = true
				break
			}
		}
		if !hit {
			values[spec.Name] = Value{}
		}
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].index < found[j].index })

	var kept []string
	if len(found) == 0 {
		kept = append(kept, tokens...)
	} else {
		kept = append(kept, tokens[:found[0].index]...)
	}

	for i, f := range found {
		end := len(tokens)
		if i+1 < len(found) {
			end = found[i+1].index
		}
		span := tokens[f.index+1 : end]

		switch f.spec.Kind {
		case Greedy:
			values[f.spec.Name] = Value{
				Present: true,
				Text:    strings.TrimSpace(f.inline + strings.Join(span, "")),
			}
		case Single:
			if f.inline != "" {
				values[f.spec.Name] = Value{Present: true, Text: f.inline}
				kept = append(kept, strings.TrimRight(strings.Join(span, ""), " \t\r\n"))
				continue
			}
			j := firstWord(span)
			if j < 0 {
				values[f.spec.Name] = Value{Present: true}
				continue
			}
			values[f.spec.Name] = Value{Present: true, Text: strings.TrimSpace(span[j])}
			if j+1 < len(span) {
				kept = append(kept, strings.TrimRight(strings.Join(span[j+1:], ""), " \t\r\n"))
			}
		default:
			values[f.spec.Name] = Value{Present: true}
			kept = append(kept, strings.TrimRight(strings.Join(span, ""), " \t\r\n"))
		}
	}

	remaining := strings.TrimSpace(strings.Join(kept, ""))
	if len(tail) > 0 {
		rest := strings.Join(tail, "")
		if remaining == "" {
			return values, strings.TrimSpace(rest)
		}
		remaining += " " + rest
	}
	return values, strings.TrimSpace(remaining)
}

func firstWord(tokens []string) int {
	for i, tok := range tokens {
		if strings.TrimSpace(tok) != "" {
			return i
		}
	}
	return -1
}
