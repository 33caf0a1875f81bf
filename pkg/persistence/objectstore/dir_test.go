package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirBucket_StripsScheme(t *testing.T) {
	root := t.TempDir()
	bucket := NewDirBucket("file://" + root)

	assert.Equal(t, root, bucket.Name())
	assert.NoError(t, bucket.Ping(t.Context()))
}

func TestDirBucket_RejectsEscapingKeys(t *testing.T) {
	bucket := NewDirBucket(t.TempDir())
	ctx := t.Context()

	for _, key := range []string{"", "../outside.json", "flows/../../x.json", "/etc/passwd"} {
		err := bucket.Write(ctx, key, []byte("{}"))
		assert.Error(t, err, key)

		_, err = bucket.Exists(ctx, key)
		assert.Error(t, err, key)
	}
}

func TestDirBucket_ReadWriteRemove(t *testing.T) {
	bucket := NewDirBucket(t.TempDir())
	ctx := t.Context()

	require.NoError(t, bucket.Write(ctx, "flows/a.json", []byte(`{"a":1}`)))

	exists, err := bucket.Exists(ctx, "flows/a.json")
	require.NoError(t, err)
	assert.True(t, exists)

	data, err := bucket.Read(ctx, "flows/a.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data))

	keys, err := bucket.Keys(ctx, "flows/")
	require.NoError(t, err)
	assert.Equal(t, []string{"flows/a.json"}, keys)

	require.NoError(t, bucket.Remove(ctx, "flows/a.json"))
	assert.ErrorIs(t, bucket.Remove(ctx, "flows/a.json"), ErrObjectNotExist)

	_, err = bucket.Read(ctx, "flows/a.json")
	assert.ErrorIs(t, err, ErrObjectNotExist)
}

func TestDirBucket_KeysOfMissingPrefix(t *testing.T) {
	bucket := NewDirBucket(t.TempDir())

	keys, err := bucket.Keys(t.Context(), "application/rules/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
