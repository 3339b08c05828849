package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOf_KeyOrderIndependent(t *testing.T) {
	t.Parallel()

	a := json.RawMessage(`{"home":{"team":"Bulls","score":101},"away":{"team":"Knicks","score":99},"period":4}`)
	b := json.RawMessage(`{ "period": 4, "away": {"score": 99, "team": "Knicks"}, "home": {"score": 101, "team": "Bulls"} }`)

	fpA, err := Of(a)
	require.NoError(t, err)
	fpB, err := Of(b)
	require.NoError(t, err)

	assert.Equal(t, fpA, fpB)
	assert.True(t, Valid(fpA))
}

func TestOf_StructAndMapAgree(t *testing.T) {
	t.Parallel()

	type team struct {
		Name  string `json:"name"`
		Score int    `json:"score"`
	}
	structured := struct {
		Home team `json:"home"`
		Away team `json:"away"`
	}{
		Home: team{Name: "Celtics", Score: 112},
		Away: team{Name: "Heat", Score: 108},
	}
	asMap := map[string]any{
		"away": map[string]any{"score": 108, "name": "Heat"},
		"home": map[string]any{"name": "Celtics", "score": 112},
	}

	fpStruct, err := Of(structured)
	require.NoError(t, err)
	fpMap, err := Of(asMap)
	require.NoError(t, err)

	assert.Equal(t, fpStruct, fpMap)
}

func TestOf_NumberForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		a, b  string
		equal bool
	}{
		{"integer and decimal", `{"score": 1}`, `{"score": 1.0}`, true},
		{"integer and exponent", `{"score": 1}`, `{"score": 1e0}`, true},
		{"scaled exponent", `{"score": 1}`, `{"score": 10e-1}`, true},
		{"negative zero", `{"score": 0}`, `{"score": -0.0}`, true},
		{"beyond 2^53 with fraction", `{"id": 9007199254740993}`, `{"id": 9007199254740993.0}`, true},
		{"beyond 2^53 with exponent", `{"id": 9007199254740993}`, `{"id": 90071992547409930e-1}`, true},
		{"beyond int64", `{"id": 12345678901234567890}`, `{"id": 12345678901234567891}`, false},
		{"beyond 2^53", `{"id": 9007199254740992}`, `{"id": 9007199254740993}`, false},
		{"fractions", `{"pct": 0.1}`, `{"pct": 0.10000000000000001}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fpA, err := Of(json.RawMessage(tt.a))
			require.NoError(t, err)
			fpB, err := Of(json.RawMessage(tt.b))
			require.NoError(t, err)
			if tt.equal {
				assert.Equal(t, fpA, fpB)
			} else {
				assert.NotEqual(t, fpA, fpB)
			}
		})
	}
}

func TestCanonicalize_Numbers(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		`1.50`:                   `1.5`,
		`-2.5e1`:                 `-25`,
		`1e20`:                   `100000000000000000000`,
		`1e21`:                   `1e21`,
		`12345678901234567890`:   `12345678901234567890`,
		`0.000001`:               `0.000001`,
		`1e-7`:                   `1e-7`,
		`1.25E-8`:                `1.25e-8`,
		`0.00`:                   `0`,
		`123456789012345678e+10`: `1.23456789012345678e27`,
	}

	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			got, err := Canonicalize(json.RawMessage(in))
			require.NoError(t, err)
			assert.Equal(t, want, string(got))
		})
	}
}

func TestOf_DifferentInputsDiffer(t *testing.T) {
	t.Parallel()

	fp1, err := Of(json.RawMessage(`{"score": 101}`))
	require.NoError(t, err)
	fp2, err := Of(json.RawMessage(`{"score": 102}`))
	require.NoError(t, err)
	fp3, err := Of(json.RawMessage(`["a","b"]`))
	require.NoError(t, err)
	fp4, err := Of(json.RawMessage(`["b","a"]`))
	require.NoError(t, err)

	assert.NotEqual(t, fp1, fp2)
	assert.NotEqual(t, fp3, fp4, "array order is significant")
}

func TestOf_RawText(t *testing.T) {
	t.Parallel()

	fp1, err := Of("Bulls 101, Knicks 99")
	require.NoError(t, err)
	fp2, err := Of("Bulls 101, Knicks 99")
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   json.RawMessage
		want    string
		wantErr bool
	}{
		{"sorted keys", json.RawMessage(`{"b":1,"a":2}`), `{"a":2,"b":1}`, false},
		{"nested", json.RawMessage(`{"z":{"y":[3,{"b":1,"a":0}]}}`), `{"z":{"y":[3,{"a":0,"b":1}]}}`, false},
		{"no html escaping", json.RawMessage(`{"t":"A&B <x>"}`), `{"t":"A&B <x>"}`, false},
		{"invalid", json.RawMessage(`{"a":`), "", true},
		{"trailing data", json.RawMessage(`{"a":1} {"b":2}`), "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrNotSerializable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestOf_Unserializable(t *testing.T) {
	t.Parallel()

	_, err := Of(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotSerializable)
}

func TestJobID(t *testing.T) {
	t.Parallel()

	fp, err := Of(json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, JobID("recap", fp), JobID("recap", fp))
	assert.NotEqual(t, JobID("recap", fp), JobID("parse", fp))
	assert.Len(t, JobID("recap", fp), 36)
}
