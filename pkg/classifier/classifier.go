// Package classifier decides whether a column carries sensitive or personal
// data, from its content and from its name.
//
// Two signals are extracted independently and then arbitrated:
//
//   - content: the share of sampled non-null values matching the best of a
//     fixed set of patterns, kept only above 0.8;
//   - name: keyword containment on the normalized column name, then an
//     optional semantic similarity engine.
//
// Strong content evidence wins, then a confident name, then weak content.
package classifier

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/logging"
)

// Source identifies the evidence behind a classification.
type Source string

const (
	SourceContent     Source = "CONTENT"
	SourceName        Source = "NLP"
	SourceContentWeak Source = "CONTENT_WEAK"
)

// Tag identifiers produced directly by the classifier.
const (
	TagSensitive  = "PII.Sensitive"
	TagContact    = "PII.Contact"
	TagSSN        = "PII.Sensitive.SSN"
	TagEmail      = "PII.Contact.Email"
	TagPhone      = "PII.Contact.Phone"
	TagCreditCard = "PII.Sensitive.CreditCard"
)

// Thresholds.
const (
	contentPresent = 0.8
	contentStrong  = 0.85
	nameConfident  = 0.7
	contentWeak    = 0.5
	similarityMin  = 0.7

	sensitiveNameConfidence = 0.9
	contactNameConfidence   = 0.8
)

// DefaultSampleLimit bounds the non-null values checked per column.
const DefaultSampleLimit = 100

type pattern struct {
	tag string
	re  *regexp.Regexp
}

// patterns are evaluated in this order; ties keep the earlier pattern.
var patterns = []pattern{
	{TagSSN, regexp.MustCompile(`^\d{3}-\d{2}-\d{4}$`)},
	{TagEmail, regexp.MustCompile(`^[^@]+@[^@]+\.[^@]+`)},
	{TagPhone, regexp.MustCompile(`^[\+]?[(]?[0-9]{3}[)]?[-\s\.]?[0-9]{3}[-\s\.]?[0-9]{4,6}$`)},
	{TagCreditCard, regexp.MustCompile(`^\d{4}[- ]?\d{4}[- ]?\d{4}[- ]?\d{4}$`)},
}

// SensitiveKeywords and ContactKeywords are matched by substring against
// the normalized column name, and enumerated in this order for similarity.
var (
	SensitiveKeywords = []string{
		"ssn", "social_security", "social_security_number", "passport", "credit_card",
		"cc_num", "dob", "birth_date", "birth", "pwd", "password",
	}
	ContactKeywords = []string{
		"first_name", "last_name", "full_name", "email", "phone", "address", "zip_code",
	}
)

// Signal is one extractor's finding.
type Signal struct {
	Tag        string
	Confidence float64
}

// Classification is the arbitrated result for one column.
type Classification struct {
	Tag        string  `json:"tag"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

// Similarity scores the semantic closeness of two short strings in [0,1].
type Similarity interface {
	Similarity(ctx context.Context, a, b string) (float64, error)
}

// Classifier is safe for concurrent use.
type Classifier struct {
	similarity  Similarity
	sampleLimit int
	logger      *slog.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithSimilarity enables the semantic name matcher.
func WithSimilarity(s Similarity) Option {
	return func(c *Classifier) { c.similarity = s }
}

// WithSampleLimit overrides DefaultSampleLimit. n <= 0 checks every value.
func WithSampleLimit(n int) Option {
	return func(c *Classifier) { c.sampleLimit = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Classifier) { c.logger = l }
}

// New creates a classifier.
func New(opts ...Option) *Classifier {
	c := &Classifier{sampleLimit: DefaultSampleLimit}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.Or(c.logger)
	return c
}

// Classify returns the classification of a column, or nil when there is
// no sufficient evidence.
func (c *Classifier) Classify(ctx context.Context, name string, values []any) *Classification {
	if c.sampleLimit > 0 && len(values) > c.sampleLimit {
		values = values[:c.sampleLimit]
	}
	return Arbitrate(ContentSignal(values), c.NameSignal(ctx, name))
}

// ClassifyColumn classifies column i of ds.
func (c *Classifier) ClassifyColumn(ctx context.Context, ds *dataset.Dataset, i int) *Classification {
	return c.Classify(ctx, ds.Columns[i].Name, ds.NonNull(i, c.sampleLimit))
}

// ContentSignal returns the best-matching pattern when strictly more than
// 80% of the non-null values match it.
func ContentSignal(values []any) *Signal {
	texts := make([]string, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		texts = append(texts, dataset.Format(v))
	}
	if len(texts) == 0 {
		return nil
	}

	var best *Signal
	for _, p := range patterns {
		matches := 0
		for _, s := range texts {
			if p.re.MatchString(s) {
				matches++
			}
		}
		score := float64(matches) / float64(len(texts))
		if score > 0 && (best == nil || score > best.Confidence) {
			best = &Signal{Tag: p.tag, Confidence: score}
		}
	}

	if best == nil || best.Confidence <= contentPresent {
		return nil
	}
	return best
}

// NameSignal matches the normalized column name against the keyword sets,
// then falls back to the similarity engine. The engine returns the first
// keyword above threshold in enumeration order, not the closest one.
func (c *Classifier) NameSignal(ctx context.Context, name string) *Signal {
	clean := strings.ToLower(strings.TrimSpace(name))
	if clean == "" {
		return nil
	}

	if containsAny(clean, SensitiveKeywords) {
		return &Signal{Tag: TagSensitive, Confidence: sensitiveNameConfidence}
	}
	if containsAny(clean, ContactKeywords) {
		return &Signal{Tag: TagContact, Confidence: contactNameConfidence}
	}

	if c.similarity == nil {
		return nil
	}

	sets := []struct {
		tag      string
		keywords []string
	}{
		{TagSensitive, SensitiveKeywords},
		{TagContact, ContactKeywords},
	}
	for _, set := range sets {
		for _, kw := range set.keywords {
			sim, err := c.similarity.Similarity(ctx, clean, kw)
			if err != nil {
				c.logger.Warn("similarity engine failed", "column", name, "error", err)
				return nil
			}
			if sim > similarityMin {
				return &Signal{Tag: set.tag, Confidence: sim}
			}
		}
	}
	return nil
}

// Arbitrate combines the two signals. Either may be nil.
func Arbitrate(content, name *Signal) *Classification {
	if content != nil && content.Confidence > contentStrong {
		return &Classification{Tag: content.Tag, Confidence: content.Confidence, Source: SourceContent}
	}
	if name != nil && name.Confidence > nameConfident {
		return &Classification{Tag: name.Tag, Confidence: name.Confidence, Source: SourceName}
	}
	if content != nil && content.Confidence > contentWeak {
		return &Classification{Tag: content.Tag, Confidence: content.Confidence, Source: SourceContentWeak}
	}
	return nil
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
