package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type dayPlan struct {
	Morning []struct {
		Name string `json:"name"`
	} `json:"morning"`
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want int
	}{
		{"plain", `{"morning":[{"name":"Louvre"}]}`, 1},
		{"fenced", "```json\n{\"morning\":[{\"name\":\"Louvre\"},{\"name\":\"Orsay\"}]}\n```", 2},
		{"prose around", `Sure! Here you go: {"morning":[{"name":"a}b"}]} enjoy`, 1},
		{"comments and trailing comma", "{\n \"morning\": [ // best first\n  {\"name\": \"x\"},\n ],\n}", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode[dayPlan](tt.raw, nil)
			require.NoError(t, err)
			assert.Len(t, got.Morning, tt.want)
		})
	}
}

func TestDecode_Array(t *testing.T) {
	got, err := Decode[[]string]("result: [\"a\", \"b\",]", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestDecode_Invalid(t *testing.T) {
	_, err := Decode[dayPlan]("no json here", nil)
	assert.ErrorIs(t, err, ErrInvalidOutput)

	_, err = Decode[dayPlan](`{"morning": "nope"}`, nil)
	assert.ErrorIs(t, err, ErrInvalidOutput)

	_, err = Decode[dayPlan](`{"morning": []}`, func(p dayPlan) error {
		if len(p.Morning) == 0 {
			return errors.New("empty")
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrInvalidOutput)
}

func TestCleanJSON_KeepsStringContent(t *testing.T) {
	in := `{"url":"http://x.test/a,]","n":1,}`
	assert.Equal(t, `{"url":"http://x.test/a,]","n":1}`, cleanJSON(in))
}
