package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/unicode"
)

const sample = "Company,Date,Close/Last,Volume,Open,High,Low\nAAPL,01/02/2024,$185.64,82488700,$187.15,$188.44,$183.89\n"

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestOpen_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prices.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	rc, err := NewOpener(nil).Open(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sample, readAll(t, rc))
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := NewOpener(nil).Open(context.Background(), filepath.Join(t.TempDir(), "nope.csv"))
	require.Error(t, err)
}

func TestOpen_EmptyLocation(t *testing.T) {
	_, err := NewOpener(nil).Open(context.Background(), "  ")
	require.Error(t, err)
}

func TestOpen_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sample))
	}))
	defer srv.Close()

	rc, err := NewOpener(nil).Open(context.Background(), srv.URL+"/prices.csv")
	require.NoError(t, err)
	assert.Equal(t, sample, readAll(t, rc))
}

func TestOpen_URLNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOpener(nil).Open(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestDecode_StripsUTF8BOM(t *testing.T) {
	b, err := io.ReadAll(Decode(strings.NewReader("\ufeff" + sample)))
	require.NoError(t, err)
	assert.Equal(t, sample, string(b))
}

func TestDecode_UTF16LittleEndian(t *testing.T) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	utf16, err := enc.String(sample)
	require.NoError(t, err)

	b, err := io.ReadAll(Decode(strings.NewReader(utf16)))
	require.NoError(t, err)
	assert.Equal(t, sample, string(b))
}
