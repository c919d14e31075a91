// Package alias rewrites recognized text by fuzzily matching configured
// trigger phrases and substituting their replacements.
//
// Text is split into whitespace-separated fields, and each field into an
// optional leading punctuation run, a word, and an optional trailing
// punctuation run. A candidate span is a run of consecutive words with no
// punctuation between them, between one fewer and one more words than the
// phrase it is compared to. Spans are compared lowercased and joined by single
// spaces, so case and spacing never affect the score.
//
// Every candidate at or above the threshold competes. The highest score is
// applied first; ties go to the earlier span, then the first-defined entry,
// then the shorter span. Candidates overlapping an applied span are dropped.
//
// Words that spell out an entry's replacement are guarded: a fuzzy match may
// not touch them, and an exact match may unless the whole window is that same
// entry's output. Apply repeats the pass on its own output until nothing changes, so
// text joined by a deletion is matched again and the result is stable under
// a second Apply.
package alias

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Entry maps one trigger phrase to its replacement. An empty Replacement
// deletes the matched span.
type Entry struct {
	Phrase      string
	Replacement string
}

// Table is the read-only alias configuration shared by every profile.
type Table struct {
	Enabled   bool
	Threshold float64 // 0.0 to 1.0
	Entries   []Entry
}

// Substitution records one applied replacement.
type Substitution struct {
	Entry       int // index into Table.Entries
	Phrase      string
	Replacement string
	Matched     string  // the original span, verbatim
	Score       float64 // similarity of Matched to Phrase
	Start, End  int     // byte offsets of Matched in the text of its pass
	Pass        int     // 0 for the input, then one per repeat
}

// Similarity scores two strings between 0 and 1 as one minus their
// Levenshtein distance over the longer rune length, after lowercasing and
// collapsing whitespace. Two empty strings score 1.
func Similarity(a, b string) float64 {
	return similarity(normalize(a), normalize(b))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// Apply returns text with every matched phrase replaced, plus the applied
// substitutions ordered by pass, then by position. Unmatched text, including
// its whitespace, is returned unchanged. Apply does no I/O and is safe for
// concurrent use.
func Apply(text string, table Table) (string, []Substitution) {
	if !table.Enabled || len(table.Entries) == 0 || text == "" {
		return text, nil
	}

	phrases := compile(table.Entries)

	// Each pass consumes unguarded words, except when an exact match rewrites
	// another entry's output. Only a table whose exact rewrites loop back
	// (a to b, b to a) reaches the limit.
	limit := len(table.Entries) + len(strings.Fields(text)) + 1

	var all []Substitution
	for pass := 0; pass < limit; pass++ {
		out, subs := applyPass(text, phrases, table)
		if len(subs) == 0 {
			break
		}
		for i := range subs {
			subs[i].Pass = pass
		}
		all = append(all, subs...)
		text = out
	}
	return text, all
}

func applyPass(text string, phrases []phrase, table Table) (string, []Substitution) {
	toks := tokenize(text)
	owners := protect(toks, phrases)

	cands := candidates(toks, owners, phrases, table.Threshold)
	if len(cands) == 0 {
		return text, nil
	}
	chosen := choose(cands, len(toks))

	return render(text, toks, chosen, table.Entries)
}

type token struct {
	text       string
	lower      string
	start, end int
	word       bool
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func tokenize(s string) []token {
	var toks []token
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		start := i
		for i < len(s) {
			r, size = utf8.DecodeRuneInString(s[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		toks = appendField(toks, s, start, i)
	}
	return toks
}

// appendField splits one whitespace-free field into at most three tokens.
func appendField(toks []token, s string, start, end int) []token {
	field := s[start:end]
	first := strings.IndexFunc(field, isWordRune)
	if first < 0 {
		return append(toks, newToken(s, start, end, false))
	}
	last := strings.LastIndexFunc(field, isWordRune)
	_, size := utf8.DecodeRuneInString(field[last:])
	wordEnd := last + size

	if first > 0 {
		toks = append(toks, newToken(s, start, start+first, false))
	}
	toks = append(toks, newToken(s, start+first, start+wordEnd, true))
	if wordEnd < len(field) {
		toks = append(toks, newToken(s, start+wordEnd, end, false))
	}
	return toks
}

func newToken(s string, start, end int, word bool) token {
	text := s[start:end]
	return token{text: text, lower: strings.ToLower(text), start: start, end: end, word: word}
}

type phrase struct {
	key   string // lowercased words joined by single spaces
	words int
	runs  [][]string // replacement words split at punctuation
}

func compile(entries []Entry) []phrase {
	out := make([]phrase, len(entries))
	for i, e := range entries {
		var words []string
		for _, t := range tokenize(e.Phrase) {
			if t.word {
				words = append(words, t.lower)
			}
		}
		p := phrase{key: strings.Join(words, " "), words: len(words)}

		var run []string
		for _, t := range tokenize(e.Replacement) {
			if t.word {
				run = append(run, t.text)
				continue
			}
			if len(run) > 0 {
				p.runs = append(p.runs, run)
				run = nil
			}
		}
		if len(run) > 0 {
			p.runs = append(p.runs, run)
		}
		out[i] = p
	}
	return out
}

// protect records, for every word, the entries whose replacement contains it
// as part of a verbatim word run. Occurrences may overlap.
func protect(toks []token, phrases []phrase) [][]int {
	owners := make([][]int, len(toks))
	for e, p := range phrases {
		for _, run := range p.runs {
			for i := range toks {
				if !matchesRun(toks, i, run) {
					continue
				}
				for j := range run {
					if !slices.Contains(owners[i+j], e) {
						owners[i+j] = append(owners[i+j], e)
					}
				}
			}
		}
	}
	return owners
}

// allowed reports whether entry e may rewrite words with the given owners.
// Guarded words only yield to an exact match, and never to the entry whose
// replacement already spells out the whole window.
func allowed(owners [][]int, e int, score float64) bool {
	guarded, own := 0, 0
	for _, o := range owners {
		if len(o) == 0 {
			continue
		}
		guarded++
		if slices.Contains(o, e) {
			own++
		}
	}
	if guarded == 0 {
		return true
	}
	return score == 1 && own < len(owners)
}

func matchesRun(toks []token, i int, run []string) bool {
	if i+len(run) > len(toks) {
		return false
	}
	for j, w := range run {
		if !toks[i+j].word || toks[i+j].text != w {
			return false
		}
	}
	return true
}

type candidate struct {
	entry      int
	start, end int // token indices, end exclusive
	score      float64
}

func candidates(toks []token, owners [][]int, phrases []phrase, threshold float64) []candidate {
	// runEnd[i] is one past the last word reachable from i without crossing
	// punctuation.
	runEnd := make([]int, len(toks)+1)
	runEnd[len(toks)] = len(toks)
	for i := len(toks) - 1; i >= 0; i-- {
		if toks[i].word {
			runEnd[i] = runEnd[i+1]
		} else {
			runEnd[i] = i
		}
	}

	var out []candidate
	var key strings.Builder
	for i := range toks {
		if runEnd[i] == i {
			continue
		}
		for e, p := range phrases {
			if p.words == 0 {
				continue
			}
			lo := max(1, p.words-1)
			hi := min(p.words+1, runEnd[i]-i)
			for n := lo; n <= hi; n++ {
				key.Reset()
				for j := i; j < i+n; j++ {
					if j > i {
						key.WriteByte(' ')
					}
					key.WriteString(toks[j].lower)
				}
				score := similarity(key.String(), p.key)
				if score >= threshold && allowed(owners[i:i+n], e, score) {
					out = append(out, candidate{entry: e, start: i, end: i + n, score: score})
				}
			}
		}
	}
	return out
}

// choose applies candidates best-first and drops any that overlap one
// already taken. The result is ordered by position.
func choose(cands []candidate, ntoks int) []candidate {
	slices.SortFunc(cands, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(b.score, a.score),
			cmp.Compare(a.start, b.start),
			cmp.Compare(a.entry, b.entry),
			cmp.Compare(a.end, b.end),
		)
	})

	taken := make([]bool, ntoks)
	var chosen []candidate
next:
	for _, c := range cands {
		for j := c.start; j < c.end; j++ {
			if taken[j] {
				continue next
			}
		}
		for j := c.start; j < c.end; j++ {
			taken[j] = true
		}
		chosen = append(chosen, c)
	}

	slices.SortFunc(chosen, func(a, b candidate) int { return cmp.Compare(a.start, b.start) })
	return chosen
}

func render(text string, toks []token, chosen []candidate, entries []Entry) (string, []Substitution) {
	var b strings.Builder
	b.Grow(len(text))
	subs := make([]Substitution, 0, len(chosen))

	cursor := 0
	for _, c := range chosen {
		e := entries[c.entry]
		start, end := toks[c.start].start, toks[c.end-1].end
		gap := text[cursor:start]
		rest := text[end:]

		switch {
		case e.Replacement == "":
			// Deleting a span leaves one separator behind, not two.
			if r, size := utf8.DecodeRuneInString(rest); len(rest) > 0 && unicode.IsSpace(r) {
				for len(rest) > 0 && unicode.IsSpace(r) {
					rest = rest[size:]
					end += size
					r, size = utf8.DecodeRuneInString(rest)
				}
			} else {
				gap = strings.TrimRightFunc(gap, unicode.IsSpace)
			}
		case !hasWords(e.Replacement) && c.start > 0:
			// Bare punctuation attaches to the preceding token.
			gap = strings.TrimRightFunc(gap, unicode.IsSpace)
		}

		b.WriteString(gap)
		b.WriteString(e.Replacement)
		cursor = end

		subs = append(subs, Substitution{
			Entry:       c.entry,
			Phrase:      e.Phrase,
			Replacement: e.Replacement,
			Matched:     text[toks[c.start].start:toks[c.end-1].end],
			Score:       c.score,
			Start:       toks[c.start].start,
			End:         toks[c.end-1].end,
		})
	}
	b.WriteString(text[cursor:])
	return b.String(), subs
}

func hasWords(s string) bool {
	return strings.IndexFunc(s, isWordRune) >= 0
}
