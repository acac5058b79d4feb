// Package redact masks secrets in file content before it is printed.
package redact

import (
	"math"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/zricethezav/gitleaks/v8/detect"
)

// Placeholder replaces every detected secret.
const Placeholder = "REDACTED"

// candidatePattern matches runs that are long enough to be a token or key.
var candidatePattern = regexp.MustCompile(`[A-Za-z0-9/+_=-]{10,}`)

// entropyThreshold is the Shannon entropy above which a candidate is treated
// as a secret. Identifiers and prose stay well below it; generated keys sit
// above 5.0.
const entropyThreshold = 4.5

var (
	detector     *detect.Detector
	detectorOnce sync.Once
)

func getDetector() *detect.Detector {
	detectorOnce.Do(func() {
		d, err := detect.NewDetectorDefaultConfig()
		if err != nil {
			return
		}
		detector = d
	})
	return detector
}

type span struct{ start, end int }

// String returns s with secrets replaced by Placeholder. A run is a secret
// when its entropy is high or when a gitleaks rule matches it.
func String(s string) string {
	spans := mergeSpans(findSpans(s))
	if len(spans) == 0 {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	prev := 0
	for _, sp := range spans {
		b.WriteString(s[prev:sp.start])
		b.WriteString(Placeholder)
		prev = sp.end
	}
	b.WriteString(s[prev:])
	return b.String()
}

// Bytes is String for byte slices. b is returned as is when nothing matched.
func Bytes(b []byte) []byte {
	s := string(b)
	out := String(s)
	if out == s {
		return b
	}
	return []byte(out)
}

// Contains reports whether s holds anything String would mask.
func Contains(s string) bool {
	return len(findSpans(s)) > 0
}

func findSpans(s string) []span {
	var spans []span
	for _, loc := range candidatePattern.FindAllStringIndex(s, -1) {
		if shannonEntropy(s[loc[0]:loc[1]]) > entropyThreshold {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}

	d := getDetector()
	if d == nil {
		return spans
	}
	for _, f := range d.DetectString(s) {
		if f.Secret == "" {
			continue
		}
		for from := 0; ; {
			idx := strings.Index(s[from:], f.Secret)
			if idx < 0 {
				break
			}
			start := from + idx
			spans = append(spans, span{start, start + len(f.Secret)})
			from = start + len(f.Secret)
		}
	}
	return spans
}

// mergeSpans sorts spans and joins the ones that touch or overlap.
func mergeSpans(spans []span) []span {
	if len(spans) == 0 {
		return nil
	}
	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	out := []span{spans[0]}
	for _, sp := range spans[1:] {
		last := &out[len(out)-1]
		if sp.start > last.end {
			out = append(out, sp)
			continue
		}
		last.end = max(last.end, sp.end)
	}
	return out
}

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	var freq [256]int
	for i := range len(s) {
		freq[s[i]]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
