package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildAudioKey(t *testing.T) {
	key := BuildAudioKey("survey-uuid", "q1", ".webm")
	parts := strings.Split(key, "/")
	require.Len(t, parts, 3)
	assert.Equal(t, "survey-uuid", parts[0])
	assert.Equal(t, "q1", parts[1])
	assert.True(t, strings.HasSuffix(key, ".webm"))

	// Missing dot and missing extension both normalize
	assert.True(t, strings.HasSuffix(BuildAudioKey("s", "q", "ogg"), ".ogg"))
	assert.True(t, strings.HasSuffix(BuildAudioKey("s", "q", ""), ".webm"))

	// Keys are unique per call
	assert.NotEqual(t, key, BuildAudioKey("survey-uuid", "q1", ".webm"))
}

func TestLocalAudioStoreRoundTrip(t *testing.T) {
	store, err := NewLocalAudioStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("audio payload")
	key := "survey/q1/take1.webm"

	err = store.Put(ctx, key, strings.NewReader(string(content)), int64(len(content)), "audio/webm")
	require.NoError(t, err)

	body, contentType, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer body.Close()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, "audio/webm", contentType)

	require.NoError(t, store.Delete(ctx, key))
	_, _, err = store.Get(ctx, key)
	assert.Error(t, err)

	// Deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, key))
}

func TestLocalAudioStoreRejectsTraversal(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalAudioStore(filepath.Join(base, "audio"))
	require.NoError(t, err)
	ctx := context.Background()

	outside := filepath.Join(base, "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	for _, key := range []string{
		"../secret.txt",
		"../../etc/passwd",
		"/etc/passwd",
	} {
		err := store.Put(ctx, key, strings.NewReader("x"), 1, "audio/webm")
		assert.Error(t, err, "key %q must be rejected", key)

		_, _, err = store.Get(ctx, key)
		assert.Error(t, err, "key %q must be rejected", key)
	}
}

func TestContentTypeForKey(t *testing.T) {
	assert.Equal(t, "audio/webm", contentTypeForKey("a/b/c.webm"))
	assert.Equal(t, "audio/ogg", contentTypeForKey("x.OGG"))
	assert.Equal(t, "audio/mpeg", contentTypeForKey("x.mp3"))
	assert.Equal(t, "audio/mp4", contentTypeForKey("x.m4a"))
	assert.Equal(t, "audio/wav", contentTypeForKey("x.wav"))
	assert.Equal(t, "application/octet-stream", contentTypeForKey("x.bin"))
}
