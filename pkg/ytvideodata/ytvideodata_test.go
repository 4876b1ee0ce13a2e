package ytvideodata

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractId(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "https://youtu.be/dQw4w9WgXcQ?t=42", want: "dQw4w9WgXcQ"},
		{url: "https://www.youtube.com/embed/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ#t=1", want: "dQw4w9WgXcQ"},
		{url: "https://www.youtube.com/v/dQw4w9WgXcQ", want: "dQw4w9WgXcQ"},
		{url: "https://youtu.be/xyz", wantErr: true},
		{url: "not a url", wantErr: true},
		{url: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := ExtractId(tt.url)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUrl)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGetFromOembed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://www.youtube.com/watch?v=dQw4w9WgXcQ", r.URL.Query().Get("url"))
		fmt.Fprint(w, `{"title":"Song","author_name":"Rick","thumbnail_url":"https://img/x.jpg"}`)
	}))
	defer srv.Close()

	c := NewClient(WithHTTPClient(srv.Client()), WithBaseUrls(srv.URL, srv.URL+"/page/"))
	data, err := c.Get(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, &VideoData{Title: "Song", AuthorName: "Rick", ThumbnailUrl: "https://img/x.jpg"}, data)
}

func TestFallsBackToPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oembed", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/page/dQw4w9WgXcQ", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Song - YouTube</title></head>
<body><span><link itemprop="name" content="Rick"></span></body></html>`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(WithBaseUrls(srv.URL+"/oembed", srv.URL+"/page/"))
	data, err := c.Get(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	assert.Equal(t, "Song", data.Title)
	assert.Equal(t, "Rick", data.AuthorName)
	assert.Equal(t, "https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg", data.ThumbnailUrl)
}

func TestNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(WithBaseUrls(srv.URL, srv.URL)).Get(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrVideoNotFound)
}
