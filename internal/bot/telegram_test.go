package bot

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDownloadFileID(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo.jpeg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("123"))
		case "/huge.jpeg":
			w.Write([]byte(strings.Repeat("x", maxPhotoSize+1)))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()

	getFileDirectURL := func(fileID string) (string, error) {
		if fileID == "broken" {
			return "", fmt.Errorf("file not found")
		}
		return fmt.Sprintf("%s/%s.jpeg", ts.URL, fileID), nil
	}

	t.Run("ok", func(t *testing.T) {
		data, err := downloadFileID(getFileDirectURL, "photo")
		require.NoError(t, err)
		assert.Equal(t, []byte("123"), data)
	})

	t.Run("http error", func(t *testing.T) {
		_, err := downloadFileID(getFileDirectURL, "missing")
		assert.ErrorContains(t, err, "404")
	})

	t.Run("too large", func(t *testing.T) {
		_, err := downloadFileID(getFileDirectURL, "huge")
		assert.ErrorContains(t, err, "file too large")
	})

	t.Run("no url", func(t *testing.T) {
		_, err := downloadFileID(getFileDirectURL, "broken")
		assert.ErrorContains(t, err, "file not found")
	})
}
