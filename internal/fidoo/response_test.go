package fidoo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePage(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		wantRecords  int
		wantComplete bool
		wantToken    string
	}{
		{"bare array", `[{"a":1},{"a":2}]`, 2, true, ""},
		{"items envelope", `{"items":[{"a":1}],"complete":false,"nextOffsetToken":"t"}`, 1, false, "t"},
		{"capitalised data", `{"Data":[{"a":1},{"a":2},{"a":3}],"complete":true}`, 3, true, ""},
		{"empty root falls through", `{"root":[],"records":[{"a":1}]}`, 1, false, ""},
		{"first present key wins", `{"items":[{"a":1}],"data":[{"a":1},{"a":2}]}`, 1, false, ""},
		{"single object wrapped", `{"data":{"a":1}}`, 1, false, ""},
		{"no records", `{"complete":true}`, 0, true, ""},
		{"null body", `null`, 0, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := parsePage([]byte(tt.body))
			require.NoError(t, err)
			assert.Len(t, page.Records, tt.wantRecords)
			assert.Equal(t, tt.wantComplete, page.Complete)
			assert.Equal(t, tt.wantToken, page.NextOffsetToken)
		})
	}
}

func TestParsePage_ScalarItemsAreWrapped(t *testing.T) {
	page, err := parsePage([]byte(`["x", null]`))
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "x", page.Records[0]["value"])
}

func TestParsePage_InvalidJSON(t *testing.T) {
	_, err := parsePage([]byte(`{`))
	require.Error(t, err)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, DefaultRetryAfter, parseRetryAfter(""))
	assert.Equal(t, DefaultRetryAfter, parseRetryAfter("soon"))
	assert.Equal(t, int64(30), int64(parseRetryAfter("30").Seconds()))
}
