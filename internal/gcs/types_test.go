package gcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURI(t *testing.T) {
	bucket, object, err := ParseURI("gs://fidoo-exports/state/state.json")
	require.NoError(t, err)
	assert.Equal(t, "fidoo-exports", bucket)
	assert.Equal(t, "state/state.json", object)

	for _, bad := range []string{"s3://x/y", "gs://bucket", "gs://bucket/", "gs:///obj"} {
		_, _, err := ParseURI(bad)
		assert.Error(t, err, bad)
	}
}

func TestObjectName(t *testing.T) {
	assert.Equal(t, "user.csv", ObjectName("", "user.csv"))
	assert.Equal(t, "out/tables/user.csv", ObjectName("out/tables/", "user.csv"))
}
