// Package extractor turns unlabeled page text into candidate hero
// observations. The upstream stats page carries no structured markup, so
// extraction is a text-window heuristic: a hero name opens a window over the
// following lines and the first two percentages found are assigned
// positionally to pick rate then win rate. That ordering assumes the page
// always renders pick rate first; swapping the policy only requires another
// stats.Extractor implementation.
package extractor

import (
	"fmt"
	"iter"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ow2stats/herostats/internal/stats"
)

// DefaultWindow is how many lines after a hero name are searched for values.
const DefaultWindow = 6

var percentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)

type heroMatcher struct {
	token string
	re    *regexp.Regexp
}

// WindowStrategy implements stats.Extractor via line-window scanning.
type WindowStrategy struct {
	window   int
	matchers []heroMatcher
	logger   *zap.Logger
}

// NewWindowStrategy compiles word-boundary matchers for every vocabulary
// token. Longer tokens take precedence at the same position so "Wrecking
// Ball" is never reported as a bare substring match.
func NewWindowStrategy(tokens []string, window int, logger *zap.Logger) (*WindowStrategy, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("hero vocabulary is empty")
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	matchers := make([]heroMatcher, 0, len(sorted))
	for _, token := range sorted {
		// Hero names contain punctuation ("D.Va", "Soldier: 76"), so \b is
		// not enough; require a non-alphanumeric rune on both sides.
		expr := `(?i)(?:^|[^\p{L}\p{N}])(` + regexp.QuoteMeta(token) + `)(?:$|[^\p{L}\p{N}])`
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile matcher for %q: %w", token, err)
		}
		matchers = append(matchers, heroMatcher{token: token, re: re})
	}
	return &WindowStrategy{
		window:   window,
		matchers: matchers,
		logger:   logger,
	}, nil
}

// candidate is an open observation still collecting percentages.
type candidate struct {
	hero     string
	rates    []*float64
	lastLine int
}

func (c *candidate) full() bool { return len(c.rates) >= 2 }

func (c *candidate) observation() stats.RawObservation {
	obs := stats.RawObservation{Hero: c.hero}
	if len(c.rates) > 0 {
		obs.PickRate = c.rates[0]
	}
	if len(c.rates) > 1 {
		obs.WinRate = c.rates[1]
	}
	return obs
}

// Observations returns a restartable sequence of raw observations in
// first-seen order. It does not deduplicate; that is downstream's job.
func (s *WindowStrategy) Observations(pageText string) iter.Seq[stats.RawObservation] {
	return func(yield func(stats.RawObservation) bool) {
		lines := strings.Split(pageText, "\n")
		var open *candidate

		emit := func() bool {
			if open == nil {
				return true
			}
			obs := open.observation()
			open = nil
			return yield(obs)
		}

		for i, line := range lines {
			if open != nil && i > open.lastLine {
				// Window expired: partial data beats silent loss.
				if !emit() {
					return
				}
			}
			if token, rest, ok := s.matchHero(line); ok {
				if open != nil && !emit() {
					return
				}
				open = &candidate{hero: token, lastLine: i + s.window}
				s.collect(open, rest)
				if open.full() && !emit() {
					return
				}
				continue
			}
			if open != nil {
				s.collect(open, line)
				if open.full() && !emit() {
					return
				}
			}
		}
		emit()
	}
}

// Extract collects the observation sequence into a slice.
func (s *WindowStrategy) Extract(pageText string) []stats.RawObservation {
	var out []stats.RawObservation
	for obs := range s.Observations(pageText) {
		out = append(out, obs)
	}
	return out
}

// matchHero finds the leftmost hero token in line and returns the text that
// follows it, so same-line percentages are still considered.
func (s *WindowStrategy) matchHero(line string) (string, string, bool) {
	bestStart := -1
	bestEnd := 0
	bestToken := ""
	for _, m := range s.matchers {
		loc := m.re.FindStringSubmatchIndex(line)
		if loc == nil {
			continue
		}
		start, end := loc[2], loc[3]
		if bestStart == -1 || start < bestStart {
			bestStart = start
			bestEnd = end
			bestToken = m.token
		}
	}
	if bestStart == -1 {
		return "", "", false
	}
	return bestToken, line[bestEnd:], true
}

// collect appends up to two percentage values from text onto the candidate.
// Out-of-range values are parse noise: the positional slot stays null.
func (s *WindowStrategy) collect(c *candidate, text string) {
	for _, match := range percentPattern.FindAllStringSubmatch(text, -1) {
		if c.full() {
			return
		}
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil || value < 0 || value > 100 {
			s.logger.Warn("percentage outside [0,100] treated as noise",
				zap.String("hero", c.hero),
				zap.String("token", match[0]),
			)
			c.rates = append(c.rates, nil)
			continue
		}
		v := value
		c.rates = append(c.rates, &v)
	}
}
