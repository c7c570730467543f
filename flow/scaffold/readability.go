// Package scaffold provides the deterministic language-support intelligence
// shared by content runners: readability analysis over the Flesch family of
// formulas, and a levelled sentence-frame catalogue.
//
// Everything here is pure computation over text. No AI calls, no I/O.
package scaffold

import (
	"strings"
	"unicode"
)

// Readability is the analysis produced by Analyze.
type Readability struct {
	TotalWords            int     `json:"totalWords"`
	TotalSentences        int     `json:"totalSentences"`
	AverageSentenceLength float64 `json:"averageSentenceLength"`
	AverageWordLength     float64 `json:"averageWordLength"`
	ComplexWordCount      int     `json:"complexWordCount"`
	FleschKincaid         float64 `json:"fleschKincaid"`
	FleschReadingEase     float64 `json:"fleschReadingEase"`

	// SuggestedELPALevel maps reading ease into the five proficiency bands,
	// adjusted for complex-word density. Always within [1, 5].
	SuggestedELPALevel int `json:"suggestedElpaLevel"`
}

// Analyze scores a text for readability. It tolerates empty and
// punctuation-only input: zero words yields zeroed averages and the easiest
// band.
func Analyze(text string) Readability {
	words := splitWords(text)
	sentences := countSentences(text)

	r := Readability{
		TotalWords:     len(words),
		TotalSentences: sentences,
	}
	if len(words) == 0 {
		r.FleschReadingEase = 100
		r.SuggestedELPALevel = 1
		return r
	}

	totalSyllables := 0
	totalChars := 0
	for _, w := range words {
		s := countSyllables(w)
		totalSyllables += s
		totalChars += len(w)
		if s >= 3 {
			r.ComplexWordCount++
		}
	}

	r.AverageSentenceLength = float64(len(words)) / float64(sentences)
	r.AverageWordLength = float64(totalChars) / float64(len(words))

	syllablesPerWord := float64(totalSyllables) / float64(len(words))

	ease := 206.835 - 1.015*r.AverageSentenceLength - 84.6*syllablesPerWord
	if ease < 0 {
		ease = 0
	}
	if ease > 100 {
		ease = 100
	}
	r.FleschReadingEase = ease

	grade := 0.39*r.AverageSentenceLength + 11.8*syllablesPerWord - 15.59
	if grade < 0 {
		grade = 0
	}
	r.FleschKincaid = grade

	r.SuggestedELPALevel = suggestLevel(ease, r.ComplexWordCount, len(words))
	return r
}

// suggestLevel maps reading ease into five bands and bumps the result one
// level for texts dense in complex words.
func suggestLevel(ease float64, complexWords, totalWords int) int {
	var level int
	switch {
	case ease > 85:
		level = 1
	case ease > 70:
		level = 2
	case ease > 50:
		level = 3
	case ease > 30:
		level = 4
	default:
		level = 5
	}
	if totalWords > 0 && float64(complexWords)/float64(totalWords) > 0.2 && level < 5 {
		level++
	}
	return level
}

// splitWords returns the maximal alphanumeric runs in the text.
func splitWords(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// countSentences splits on runs of '.', '!' and '?'. Text without any
// terminator counts as one sentence so averages never divide by zero.
func countSentences(text string) int {
	n := 0
	inRun := false
	sawContent := false
	for _, r := range text {
		switch r {
		case '.', '!', '?':
			if !inRun && sawContent {
				n++
			}
			inRun = true
			sawContent = false
		default:
			inRun = false
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				sawContent = true
			}
		}
	}
	if sawContent {
		n++
	}
	if n == 0 {
		n = 1
	}
	return n
}

// countSyllables approximates syllables as vowel groups, with the usual
// silent-e correction. Every word counts at least one.
func countSyllables(word string) int {
	word = strings.ToLower(word)
	count := 0
	prevVowel := false
	for _, r := range word {
		v := isVowel(r)
		if v && !prevVowel {
			count++
		}
		prevVowel = v
	}
	if strings.HasSuffix(word, "e") && !strings.HasSuffix(word, "le") && count > 1 {
		count--
	}
	if count < 1 {
		count = 1
	}
	return count
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'y':
		return true
	}
	return false
}
