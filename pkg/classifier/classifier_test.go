package classifier

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sujanshetty01/OMD/pkg/dataset"
	"github.com/sujanshetty01/OMD/pkg/logging"
)

func repeat(matching, total int, match, other string) []any {
	out := make([]any, 0, total)
	for i := 0; i < total; i++ {
		if i < matching {
			out = append(out, match)
		} else {
			out = append(out, other)
		}
	}
	return out
}

func TestContentSignal_BoundaryIsExclusive(t *testing.T) {
	values := repeat(8, 10, "user@example.com", "not an email")
	assert.Nil(t, ContentSignal(values), "exactly 80% must not produce a signal")

	values = repeat(9, 10, "user@example.com", "not an email")
	sig := ContentSignal(values)
	require.NotNil(t, sig)
	assert.Equal(t, TagEmail, sig.Tag)
	assert.InDelta(t, 0.9, sig.Confidence, 1e-9)
}

func TestContentSignal_IgnoresNulls(t *testing.T) {
	values := []any{"123-45-6789", nil, "987-65-4321", nil}
	sig := ContentSignal(values)
	require.NotNil(t, sig)
	assert.Equal(t, TagSSN, sig.Tag)
	assert.Equal(t, 1.0, sig.Confidence)

	assert.Nil(t, ContentSignal([]any{nil, nil}))
	assert.Nil(t, ContentSignal(nil))
}

func TestContentSignal_Patterns(t *testing.T) {
	tests := []struct {
		value string
		tag   string
	}{
		{"123-45-6789", TagSSN},
		{"ada@example.org", TagEmail},
		{"(555) 123-4567", TagPhone},
		{"+555.123.4567", TagPhone},
		{"4111 1111 1111 1111", TagCreditCard},
		{"4111-1111-1111-1111", TagCreditCard},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			sig := ContentSignal([]any{tt.value})
			require.NotNil(t, sig)
			assert.Equal(t, tt.tag, sig.Tag)
		})
	}
}

func TestContentSignal_FormatsNonStrings(t *testing.T) {
	// 10-digit integers look like phone numbers once rendered.
	sig := ContentSignal([]any{int64(5551234567), int64(5559876543)})
	require.NotNil(t, sig)
	assert.Equal(t, TagPhone, sig.Tag)
}

func TestNameSignal_Keywords(t *testing.T) {
	c := New()
	ctx := context.Background()

	sig := c.NameSignal(ctx, "  Customer_SSN ")
	require.NotNil(t, sig)
	assert.Equal(t, Signal{Tag: TagSensitive, Confidence: 0.9}, *sig)

	sig = c.NameSignal(ctx, "billing_address")
	require.NotNil(t, sig)
	assert.Equal(t, Signal{Tag: TagContact, Confidence: 0.8}, *sig)

	// sensitive wins when both sets match
	sig = c.NameSignal(ctx, "email_password")
	require.NotNil(t, sig)
	assert.Equal(t, TagSensitive, sig.Tag)

	assert.Nil(t, c.NameSignal(ctx, "quantity"))
	assert.Nil(t, c.NameSignal(ctx, "   "))
}

type fakeSimilarity struct {
	scores map[string]float64
	err    error
	calls  []string
}

func (f *fakeSimilarity) Similarity(_ context.Context, a, b string) (float64, error) {
	f.calls = append(f.calls, b)
	if f.err != nil {
		return 0, f.err
	}
	return f.scores[b], nil
}

func TestNameSignal_SimilarityReturnsFirstAboveThreshold(t *testing.T) {
	sim := &fakeSimilarity{scores: map[string]float64{
		"passport":    0.75,
		"credit_card": 0.95,
		"email":       0.99,
	}}
	c := New(WithSimilarity(sim))

	sig := c.NameSignal(context.Background(), "travel_doc_no")
	require.NotNil(t, sig)
	assert.Equal(t, TagSensitive, sig.Tag)
	assert.Equal(t, 0.75, sig.Confidence, "first keyword above threshold, not the best one")
	assert.Equal(t, []string{"ssn", "social_security", "social_security_number", "passport"}, sim.calls)
}

func TestNameSignal_SimilarityFallsThroughToContactSet(t *testing.T) {
	sim := &fakeSimilarity{scores: map[string]float64{"full_name": 0.71}}
	c := New(WithSimilarity(sim))

	sig := c.NameSignal(context.Background(), "customer")
	require.NotNil(t, sig)
	assert.Equal(t, TagContact, sig.Tag)
	assert.Equal(t, 0.71, sig.Confidence)
}

func TestNameSignal_SimilarityThresholdIsExclusive(t *testing.T) {
	sim := &fakeSimilarity{scores: map[string]float64{"ssn": 0.7}}
	c := New(WithSimilarity(sim))

	assert.Nil(t, c.NameSignal(context.Background(), "code"))
	assert.Len(t, sim.calls, len(SensitiveKeywords)+len(ContactKeywords))
}

func TestNameSignal_SimilarityErrorYieldsNoSignal(t *testing.T) {
	sim := &fakeSimilarity{err: errors.New("engine offline")}
	c := New(WithSimilarity(sim), WithLogger(logging.Discard()))

	assert.Nil(t, c.NameSignal(context.Background(), "code"))
}

func TestArbitrate(t *testing.T) {
	tests := []struct {
		name    string
		content *Signal
		nameSig *Signal
		want    *Classification
	}{
		{
			name:    "strong content beats name",
			content: &Signal{TagEmail, 0.9},
			nameSig: &Signal{TagSensitive, 0.9},
			want:    &Classification{TagEmail, 0.9, SourceContent},
		},
		{
			name:    "name beats weak content",
			content: &Signal{TagPhone, 0.85},
			nameSig: &Signal{TagContact, 0.8},
			want:    &Classification{TagContact, 0.8, SourceName},
		},
		{
			name:    "weak content without name",
			content: &Signal{TagPhone, 0.85},
			want:    &Classification{TagPhone, 0.85, SourceContentWeak},
		},
		{
			name:    "name at threshold is not enough",
			nameSig: &Signal{TagContact, 0.7},
		},
		{
			name: "no evidence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Arbitrate(tt.content, tt.nameSig)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, Arbitrate(tt.content, tt.nameSig), "deterministic")
		})
	}
}

func TestClassify_SSNColumnIsContentStrong(t *testing.T) {
	values := make([]any, 10)
	for i := range values {
		values[i] = fmt.Sprintf("%03d-%02d-%04d", 100+i, 10+i, 1000+i)
	}

	got := New().Classify(context.Background(), "ssn", values)
	require.NotNil(t, got)
	assert.Equal(t, Classification{Tag: TagSSN, Confidence: 1.0, Source: SourceContent}, *got)
}

func TestClassify_LastNameIsNameDerived(t *testing.T) {
	values := []any{"Lovelace", "Turing", "Hopper", "Knuth"}

	got := New().Classify(context.Background(), "last_name", values)
	require.NotNil(t, got)
	assert.Equal(t, Classification{Tag: TagContact, Confidence: 0.8, Source: SourceName}, *got)
}

func TestClassify_WeakContent(t *testing.T) {
	values := repeat(5, 6, "555-123-4567", "n/a")

	got := New().Classify(context.Background(), "contact_no", values)
	require.NotNil(t, got)
	assert.Equal(t, SourceContentWeak, got.Source)
	assert.Equal(t, TagPhone, got.Tag)
}

func TestClassify_SampleLimit(t *testing.T) {
	// first 10 values match, the rest do not
	values := append(repeat(10, 10, "a@b.co", ""), repeat(0, 30, "", "plain")...)

	assert.NotNil(t, New(WithSampleLimit(10)).Classify(context.Background(), "c", values))
	assert.Nil(t, New(WithSampleLimit(0)).Classify(context.Background(), "c", values))
}

func TestClassifyColumn(t *testing.T) {
	ds := dataset.FromStrings("d", []string{"id", "email"}, [][]string{
		{"1", "a@x.com"}, {"2", "b@x.com"}, {"3", ""},
	})

	c := New()
	assert.Nil(t, c.ClassifyColumn(context.Background(), ds, 0))

	got := c.ClassifyColumn(context.Background(), ds, 1)
	require.NotNil(t, got)
	assert.Equal(t, TagEmail, got.Tag)
	assert.Equal(t, SourceContent, got.Source)
}
