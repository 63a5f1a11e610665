// Package quality implements the deterministic pre-publication checks run
// against every drafted article: self-audit, bias scan, reading level and
// source attribution.
package quality

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	citationRe   = regexp.MustCompile(`\[(S\d+)\]`)
	markdownRe   = regexp.MustCompile("[#*_>`]+")
	linkRe       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	sentenceEnds = regexp.MustCompile(`[.!?]+(\s|$)`)
)

// plainText strips markdown, links and citation markers, and applies NFKC
// normalisation so ligatures and full-width forms tokenise like ASCII.
func plainText(text string) string {
	s := norm.NFKC.String(text)
	s = citationRe.ReplaceAllString(s, "")
	s = linkRe.ReplaceAllString(s, "$1")
	s = markdownRe.ReplaceAllString(s, "")
	return s
}

// Words splits text into words, ignoring punctuation-only tokens.
func Words(text string) []string {
	fields := strings.FieldsFunc(plainText(text), func(r rune) bool {
		return unicode.IsSpace(r) || r == '—' || r == '/'
	})
	out := fields[:0]
	for _, f := range fields {
		w := strings.TrimFunc(f, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}

// WordCount returns the number of words in text.
func WordCount(text string) int { return len(Words(text)) }

func sentenceCount(text string) int {
	n := len(sentenceEnds.FindAllStringIndex(strings.TrimSpace(plainText(text)), -1))
	if n == 0 {
		return 1
	}
	return n
}

// Syllables estimates the syllable count of an English word by counting
// vowel groups, discounting a silent trailing "e".
func Syllables(word string) int {
	w := strings.ToLower(word)
	if len(w) <= 3 {
		return 1
	}

	count := 0
	prevVowel := false
	for _, r := range w {
		v := strings.ContainsRune("aeiouy", r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(w, "e") && !strings.HasSuffix(w, "le") && count > 1 {
		count--
	}
	if strings.HasSuffix(w, "es") || strings.HasSuffix(w, "ed") {
		if count > 1 && !strings.HasSuffix(w, "ted") && !strings.HasSuffix(w, "ded") {
			count--
		}
	}
	if count < 1 {
		count = 1
	}
	return count
}

// FleschKincaid returns the unrounded Flesch-Kincaid grade level of text.
// Empty text scores 0.
func FleschKincaid(text string) float64 {
	words := Words(text)
	if len(words) == 0 {
		return 0
	}
	syllables := 0
	for _, w := range words {
		syllables += Syllables(w)
	}
	wc := float64(len(words))
	return 0.39*(wc/float64(sentenceCount(text))) + 11.8*(float64(syllables)/wc) - 15.59
}

// Check is the outcome of a single quality check.
type Check struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Value  float64 `json:"value,omitempty"`
	Detail string  `json:"detail,omitempty"`
}

// ReadingLevelCheck passes iff lo <= level <= hi on the unrounded level.
// Value carries the level rounded to one decimal, unclamped.
func ReadingLevelCheck(level, lo, hi float64) Check {
	c := Check{Name: "reading_level", Value: math.Round(level*10) / 10, Passed: level >= lo && level <= hi}
	if !c.Passed {
		c.Detail = fmt.Sprintf("grade %.2f outside [%.1f, %.1f]", level, lo, hi)
	}
	return c
}

// ReadingLevel computes the grade of text and checks it against [lo, hi].
func ReadingLevel(text string, lo, hi float64) Check {
	return ReadingLevelCheck(FleschKincaid(text), lo, hi)
}
