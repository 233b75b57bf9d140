package storage

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeDataURL(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("jpeg-bytes"))

	data, contentType, err := DecodeDataURL("data:image/png;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)
	assert.Equal(t, "image/png", contentType)

	_, contentType, err = DecodeDataURL("data:;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", contentType)
}

func TestDecodeDataURL_Rejects(t *testing.T) {
	cases := []string{
		"https://example.com/photo.jpg",
		"data:image/png;base64",
		"data:image/png,rawtext",
		"data:image/png;base64,!!!",
	}
	for _, c := range cases {
		_, _, err := DecodeDataURL(c)
		assert.Error(t, err, c)
	}
}

func TestPhotoObjectName(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	assert.Equal(t, "requests/r1/photo_2_1700000000123.jpg", PhotoObjectName("r1", 2, "image/jpeg", now))
	assert.Equal(t, "requests/r1/photo_0_1700000000123.bin", PhotoObjectName("r1", 0, "application/x", now))
	assert.True(t, strings.HasPrefix(PhotoObjectName("r1", 0, "image/png", now), RequestPrefix("r1")))
	assert.False(t, strings.HasPrefix(PhotoObjectName("r10", 0, "image/png", now), RequestPrefix("r1")))
}

func TestIsInline(t *testing.T) {
	assert.True(t, IsInline("data:image/jpeg;base64,AAAA"))
	assert.False(t, IsInline("https://storage.googleapis.com/b/requests/r1/photo_0.jpg"))
}
