// Package names cleans and normalizes author and editor names found in
// question packages.
//
// Ukrainian credits often read "Іван Петренко в редакції Станіслава Мерляна":
// the main author is written in the nominative case, everyone introduced by
// an editing or idea phrase is in the genitive. Normalize splits such strings
// and converts the genitive names back to the nominative. The conversion is
// a conservative suffix table: input that no rule matches is returned as is.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// phraseRe matches the phrases that introduce genitive names.
var phraseRe = regexp.MustCompile(`(?i)(?:^|[\s,;(])(?:(?:в|у|за|під|под)\s+редакц(?:ії|ією|ии|ией)|за\s+ідеєю|ідея|идея|по\s+идее|edited\s+by|idea\s+by)(?:[\s:]+|$)`)

// separatorRe splits lists of names.
var separatorRe = regexp.MustCompile(`(?i)\s*[,;]\s*|\s+(?:і|й|та|и|and|&)\s+`)

// cityRe matches a parenthetical annotation such as "(Київ)".
var cityRe = regexp.MustCompile(`\s*\([^)]*\)`)

const trailingPunct = ".,;:!?-–— \t\n"

// segment is a piece of a credit string. Genitive segments follow an
// editing/idea phrase.
type segment struct {
	text     string
	genitive bool
}

func segments(s string) []segment {
	s = norm.NFC.String(s)
	var out []segment
	prev, genitive := 0, false
	for _, loc := range phraseRe.FindAllStringIndex(s, -1) {
		if seg := clean(s[prev:loc[0]]); seg != "" {
			out = append(out, segment{text: seg, genitive: genitive})
		}
		prev, genitive = loc[1], true
	}
	if seg := clean(s[prev:]); seg != "" {
		out = append(out, segment{text: seg, genitive: genitive})
	}
	return out
}

// Split cuts s on editing/idea phrases and cleans every segment.
// Empty segments are dropped.
func Split(s string) []string {
	var out []string
	for _, seg := range segments(s) {
		out = append(out, seg.text)
	}
	return out
}

// SplitNames splits a list of names on commas, semicolons and conjunctions.
func SplitNames(s string) []string {
	var out []string
	for _, part := range separatorRe.Split(s, -1) {
		if name := clean(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Normalize splits a credit string into individual nominative names. Names
// before the first editing/idea phrase are kept as written; later names are
// converted from the genitive.
func Normalize(s string) []string {
	var out []string
	for _, seg := range segments(s) {
		for _, name := range SplitNames(seg.text) {
			if seg.genitive {
				name = ToNominative(name)
			}
			out = append(out, name)
		}
	}
	return dedupe(out)
}

func clean(s string) string {
	s = cityRe.ReplaceAllString(s, "")
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, trailingPunct)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// rule rewrites a token suffix.
type rule struct {
	suffix      string
	replacement string
}

// firstNameRules convert genitive first names, most specific first.
var firstNameRules = []rule{
	{"тра", "тро"}, // Петра -> Петро
	{"ія", "ій"},   // Андрія -> Андрій
	{"ла", "ло"},   // Павла -> Павло
	{"ря", "р"},    // Ігоря -> Ігор
	{"ля", "ль"},   // Василя -> Василь
	{"ії", "ія"},   // Марії -> Марія
	{"и", "а"},     // Олени -> Олена
	{"а", ""},      // Станіслава -> Станіслав
}

// lastNameRules convert genitive last names, most specific first.
var lastNameRules = []rule{
	{"ського", "ський"},
	{"цького", "цький"},
	{"зького", "зький"},
	{"ської", "ська"},
	{"цької", "цька"},
	{"зької", "зька"},
	{"ової", "ова"},
	{"евої", "ева"},
	{"євої", "єва"},
	{"іної", "іна"},
	{"енка", "енко"}, // Шевченка -> Шевченко
	{"ого", "ий"},    // Білого -> Білий
	{"ова", "ов"},
	{"ева", "ев"},
	{"єва", "єв"},
	{"іна", "ін"},
	{"ука", "ук"},
	{"юка", "юк"},
	{"ича", "ич"},
	{"ря", "р"},
	{"ля", "ль"},
	{"а", ""}, // Мерляна -> Мерлян
}

// ToNominative converts a one- or two-token name ("Last" or "First Last")
// from the genitive case. Tokens that no rule matches, names with more
// tokens, and tokens that do not look like capitalized words are left as is.
func ToNominative(name string) string {
	name = norm.NFC.String(strings.TrimSpace(name))
	tokens := strings.Fields(name)
	switch len(tokens) {
	case 1:
		return rewrite(tokens[0], lastNameRules)
	case 2:
		return rewrite(tokens[0], firstNameRules) + " " + rewrite(tokens[1], lastNameRules)
	}
	return name
}

func rewrite(token string, rules []rule) string {
	if !isNameToken(token) {
		return token
	}
	for _, r := range rules {
		if strings.HasSuffix(token, r.suffix) {
			stem := strings.TrimSuffix(token, r.suffix)
			// Never reduce a name to its first letter.
			if len([]rune(stem)) < 2 {
				return token
			}
			return stem + r.replacement
		}
	}
	return token
}

func isNameToken(token string) bool {
	runes := []rune(token)
	if len(runes) < 3 || !unicode.IsUpper(runes[0]) {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) && r != '\'' && r != '’' && r != 'ʼ' && r != '-' {
			return false
		}
	}
	return true
}
