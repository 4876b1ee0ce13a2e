package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

var ErrInvalidUrl = errors.New("not a youtube video url")

var videoIdRegexp = regexp.MustCompile(`^.*(youtu.be/|v/|u/\w/|embed/|watch\?v=|&v=)([^#&?]*).*`)

const videoIdLen = 11

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

// ExtractId returns the 11 character video id referenced by videoUrl.
func ExtractId(videoUrl string) (string, error) {
	m := videoIdRegexp.FindStringSubmatch(videoUrl)
	if m == nil || len(m[2]) != videoIdLen {
		return "", ErrInvalidUrl
	}

	return m[2], nil
}

func EmbedUrl(videoId string) string {
	return fmt.Sprintf("https://www.youtube.com/embed/%s?enablejsapi=1", videoId)
}

type Client struct {
	httpClient *http.Client
	oembedUrl  string
	pageUrl    string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBaseUrls overrides the oembed endpoint and the watch page prefix.
func WithBaseUrls(oembedUrl, pageUrl string) Option {
	return func(c *Client) {
		c.oembedUrl = oembedUrl
		c.pageUrl = pageUrl
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		oembedUrl:  "https://www.youtube.com/oembed",
		pageUrl:    "https://youtu.be/",
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

func (c *Client) Get(ctx context.Context, videoId string) (*VideoData, error) {
	videoData, err := c.getVideoWithEmbed(ctx, videoId)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoId)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
