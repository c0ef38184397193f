// Package classify holds the title heuristics shared by the site's jobs:
// false-positive detection, category assignment and the normalized title key
// used for deduplication.
package classify

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/TobiSchelling/newsops/internal/config"
)

// Classifier applies a compiled classification config. It is safe for
// concurrent use once built.
type Classifier struct {
	loc             *time.Location
	defaultCategory string
	categories      []category
	blockedSources  []string
	excludeKeywords []string
	rules           []rule
}

type category struct {
	name     string
	keywords []string
}

type rule struct {
	keywords []string
	sources  []string
	unless   []string
}

// New compiles cfg into a Classifier.
func New(cfg config.Classification) (*Classifier, error) {
	loc, err := loadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	if cfg.DefaultCategory == "" {
		return nil, fmt.Errorf("default category is required")
	}

	c := &Classifier{
		loc:             loc,
		defaultCategory: cfg.DefaultCategory,
		blockedSources:  foldAll(cfg.FalsePositives.BlockedSources),
		excludeKeywords: foldAll(cfg.FalsePositives.ExcludeKeywords),
	}
	seen := map[string]struct{}{cfg.DefaultCategory: {}}
	for _, cat := range cfg.Categories {
		if cat.Name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		if _, dup := seen[cat.Name]; dup {
			return nil, fmt.Errorf("category %q listed twice", cat.Name)
		}
		seen[cat.Name] = struct{}{}
		c.categories = append(c.categories, category{name: cat.Name, keywords: foldAll(cat.Keywords)})
	}
	for _, r := range cfg.FalsePositives.Rules {
		if len(r.Keywords) == 0 {
			return nil, fmt.Errorf("false-positive rule without keywords")
		}
		c.rules = append(c.rules, rule{
			keywords: foldAll(r.Keywords),
			sources:  foldAll(r.Sources),
			unless:   foldAll(r.Unless),
		})
	}
	return c, nil
}

// Location is the timezone archive dates are cut in.
func (c *Classifier) Location() *time.Location {
	return c.loc
}

// Categories returns the vocabulary in match order, default category last.
func (c *Classifier) Categories() []string {
	out := make([]string, 0, len(c.categories)+1)
	for _, cat := range c.categories {
		out = append(out, cat.name)
	}
	return append(out, c.defaultCategory)
}

// IsFalsePositive reports whether an item with the given source-language
// title and source should be dropped from the archive.
func (c *Classifier) IsFalsePositive(title, source string) bool {
	if strings.TrimSpace(title) == "" {
		return false
	}
	t := fold(title)
	s := fold(source)

	if s != "" && containsAny(s, c.blockedSources) {
		return true
	}
	if containsAny(t, c.excludeKeywords) {
		return true
	}
	for _, r := range c.rules {
		if !containsAny(t, r.keywords) {
			continue
		}
		if len(r.sources) > 0 && !containsAny(s, r.sources) {
			continue
		}
		if containsAny(t, r.unless) {
			continue
		}
		return true
	}
	return false
}

// Classify returns the first category whose keywords appear in title, or the
// default category.
func (c *Classifier) Classify(title string) string {
	t := fold(title)
	if t == "" {
		return c.defaultCategory
	}
	for _, cat := range c.categories {
		if containsAny(t, cat.keywords) {
			return cat.name
		}
	}
	return c.defaultCategory
}

var brackets = map[rune]rune{
	'【': '】',
	'[': ']',
	'(': ')',
	'<': '>',
	'〔': '〕',
	'《': '》',
	'「': '」',
}

// CleanTitleKey normalizes a title into the identity used for deduplication:
// compatibility-normalized, lowercased, leading bracketed tags removed, and
// only letters and digits kept.
func CleanTitleKey(title string) string {
	s := strings.ToLower(norm.NFKC.String(title))
	if key := lettersAndDigits(stripLeadingTags(s)); key != "" {
		return key
	}
	return lettersAndDigits(s)
}

func stripLeadingTags(s string) string {
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return s
		}
		open := []rune(s)[0]
		closer, ok := brackets[open]
		if !ok {
			return s
		}
		end := strings.IndexRune(s, closer)
		if end < 0 {
			return s
		}
		// Numbered prefixes like (2) tell items apart; only word tags go.
		if isNumber(s[len(string(open)):end]) {
			return s
		}
		s = s[end+len(string(closer)):]
	}
}

func isNumber(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func lettersAndDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fold(s string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(s)))
}

func foldAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if f := fold(s); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func containsAny(text string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(text, k) {
			return true
		}
	}
	return false
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		name = "Asia/Tokyo"
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	// Minimal containers often ship without tzdata.
	if name == "Asia/Tokyo" {
		return time.FixedZone("JST", 9*3600), nil
	}
	return nil, fmt.Errorf("loading timezone %q: %w", name, err)
}
