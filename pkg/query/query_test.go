package query

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRecord is a minimal Record for interpreter tests.
type fakeRecord struct {
	name   string
	fields map[string]any
}

func (r fakeRecord) Field(name string) (any, bool) {
	v, ok := r.fields[name]
	return v, ok
}

func machine(name string, tags []string, reboot bool, distribution string) fakeRecord {
	return fakeRecord{
		name: name,
		fields: map[string]any{
			"hostname":     name,
			"tag":          tags,
			"needs:reboot": reboot,
			"distribution": distribution,
		},
	}
}

func names(records []Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.(fakeRecord).name)
	}
	return out
}

func TestParse_Empty(t *testing.T) {
	for _, text := range []string{"", "   ", "\t\n"} {
		q, err := Parse(text)
		require.NoError(t, err)
		assert.True(t, q.IsEmpty(), "input %q", text)
	}
}

func TestParse_SingleClause(t *testing.T) {
	q, err := Parse("tag:production")
	require.NoError(t, err)
	require.Len(t, q.Clauses(), 1)
	assert.Equal(t, "tag", q.Clauses()[0].Field)
	assert.Equal(t, "production", q.Clauses()[0].Value)
}

func TestParse_BoolFieldWithColonValue(t *testing.T) {
	// needs:reboot:true must resolve the field needs:reboot, not "needs".
	q, err := Parse("needs:reboot:true")
	require.NoError(t, err)
	require.Len(t, q.Clauses(), 1)
	assert.Equal(t, "needs:reboot", q.Clauses()[0].Field)
	assert.Equal(t, "true", q.Clauses()[0].Value)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse("tag:web bogus:value")
	require.Error(t, err)

	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "unrecognized filter field: bogus")
	assert.Equal(t, "bogus:value", perr.Token)
}

func TestParse_EmptyValue(t *testing.T) {
	_, err := Parse("tag:")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "empty filter value")
}

func TestParse_BadBool(t *testing.T) {
	_, err := Parse("needs:reboot:yes")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "must be true or false")
}

func TestParse_Dates(t *testing.T) {
	for _, text := range []string{
		"created-after:2026-01-20",
		"created-after:2026-01-20T14:30:00Z",
	} {
		q, err := Parse(text)
		require.NoError(t, err, "input %q", text)
		require.Len(t, q.Clauses(), 1)
	}

	_, err := Parse("created-after:notadate")
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Contains(t, perr.Reason, "invalid date")
}

func TestParse_FreeText(t *testing.T) {
	q, err := Parse("web-01")
	require.NoError(t, err)
	require.Len(t, q.Clauses(), 1)
	assert.Equal(t, "hostname", q.Clauses()[0].Field)
	assert.Equal(t, "web-01", q.Clauses()[0].Value)
}

func TestEvaluate_TwoTagConjunction(t *testing.T) {
	records := []Record{
		machine("m1", []string{"production", "web-server"}, false, "Ubuntu 24.04"),
		machine("m2", []string{"production"}, false, "Ubuntu 24.04"),
		machine("m3", []string{"web-server"}, false, "Ubuntu 22.04"),
		machine("m4", []string{"production", "web-server", "edge"}, true, "Ubuntu 24.04"),
		machine("m5", nil, false, "Ubuntu 24.04"),
	}

	q, err := Parse("tag:production tag:web-server")
	require.NoError(t, err)

	got := q.Evaluate(records)
	assert.Equal(t, []string{"m1", "m4"}, names(got))
}

func TestEvaluate_NeedsReboot(t *testing.T) {
	records := []Record{
		machine("m1", nil, true, "Ubuntu 24.04"),
		machine("m2", nil, false, "Ubuntu 24.04"),
		machine("m3", nil, true, "Ubuntu 22.04"),
	}

	q, err := Parse("needs:reboot:true")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m3"}, names(q.Evaluate(records)))

	q, err = Parse("needs:reboot:false")
	require.NoError(t, err)
	assert.Equal(t, []string{"m2"}, names(q.Evaluate(records)))
}

func TestEvaluate_SubstringMatch(t *testing.T) {
	records := []Record{
		machine("m1", nil, false, "Ubuntu 24.04 LTS"),
		machine("m2", nil, false, "Ubuntu 22.04 LTS"),
	}

	q, err := Parse("distribution:24.04")
	require.NoError(t, err)
	assert.Equal(t, []string{"m1"}, names(q.Evaluate(records)))
}

func TestEvaluate_FreeTextSubstring(t *testing.T) {
	records := []Record{
		machine("web-01", nil, false, ""),
		machine("db-01", nil, false, ""),
		machine("web-02", nil, false, ""),
	}

	q, err := Parse("web")
	require.NoError(t, err)
	assert.Equal(t, []string{"web-01", "web-02"}, names(q.Evaluate(records)))
}

func TestEvaluate_EmptyQueryIsIdentity(t *testing.T) {
	records := []Record{
		machine("m1", nil, false, ""),
		machine("m2", nil, true, ""),
	}

	q, err := Parse("")
	require.NoError(t, err)
	got := q.Evaluate(records)
	assert.Equal(t, []string{"m1", "m2"}, names(got))
}

func TestEvaluate_PreservesOrder(t *testing.T) {
	records := []Record{
		machine("z9", []string{"a"}, false, ""),
		machine("a1", []string{"a"}, false, ""),
		machine("m5", []string{"a"}, false, ""),
	}

	q, err := Parse("tag:a")
	require.NoError(t, err)
	assert.Equal(t, []string{"z9", "a1", "m5"}, names(q.Evaluate(records)))
}

func TestEvaluate_MissingFieldNeverMatches(t *testing.T) {
	records := []Record{
		fakeRecord{name: "bare", fields: map[string]any{"hostname": "bare"}},
		machine("tagged", []string{"prod"}, false, ""),
	}

	q, err := Parse("tag:prod")
	require.NoError(t, err)
	assert.Equal(t, []string{"tagged"}, names(q.Evaluate(records)))
}

func TestEvaluate_DateAfter(t *testing.T) {
	older := fakeRecord{name: "older", fields: map[string]any{
		"created-after": time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
	}}
	newer := fakeRecord{name: "newer", fields: map[string]any{
		"created-after": time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}}
	boundary := fakeRecord{name: "boundary", fields: map[string]any{
		"created-after": time.Date(2026, 1, 20, 0, 0, 0, 0, time.UTC),
	}}

	q, err := Parse("created-after:2026-01-20")
	require.NoError(t, err)

	got := q.Evaluate([]Record{older, newer, boundary})
	assert.Equal(t, []string{"newer", "boundary"}, names(got))
}

func TestEvaluate_IDMatchesIntField(t *testing.T) {
	records := []Record{
		fakeRecord{name: "one", fields: map[string]any{"id": 101}},
		fakeRecord{name: "two", fields: map[string]any{"id": 102}},
	}

	q, err := Parse("id:101")
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, names(q.Evaluate(records)))
}
