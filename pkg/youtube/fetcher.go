// Package youtube fetches caption transcripts for YouTube videos and exposes
// the transcript node.
package youtube

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL   = "https://www.youtube.com"
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	maxBodyBytes     = 10 << 20
)

var formattingTags = regexp.MustCompile(`</?[^>]+>`)

// Fetcher downloads caption transcripts.
type Fetcher struct {
	client    *http.Client
	baseURL   string
	languages []string
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithBaseURL points the fetcher at another host serving watch pages.
func WithBaseURL(baseURL string) Option {
	return func(f *Fetcher) {
		f.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLanguages sets the preferred caption languages, most preferred first.
func WithLanguages(languages ...string) Option {
	return func(f *Fetcher) {
		if len(languages) > 0 {
			f.languages = languages
		}
	}
}

// NewFetcher creates a fetcher preferring English captions.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		baseURL:   defaultBaseURL,
		languages: []string{"en"},
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Track describes one caption track listed on a watch page.
type Track struct {
	BaseURL      string
	LanguageCode string
	Name         string
	Generated    bool
}

// FetchTranscript returns the caption text of the video at videoURL as a
// single space-joined string.
func (f *Fetcher) FetchTranscript(ctx context.Context, videoURL string) (string, error) {
	id, err := ExtractVideoID(videoURL)
	if err != nil {
		return "", err
	}

	tracks, err := f.ListTracks(ctx, id)
	if err != nil {
		return "", err
	}
	track, err := chooseTrack(tracks, f.languages)
	if err != nil {
		return "", fmt.Errorf("video %s: %w", id, err)
	}

	body, err := f.get(ctx, strings.Replace(track.BaseURL, "&fmt=srv3", "", 1))
	if err != nil {
		return "", fmt.Errorf("video %s: %w", id, err)
	}
	text, err := parseTimedText(body)
	if err != nil {
		return "", fmt.Errorf("video %s: %w", id, err)
	}
	return text, nil
}

// ListTracks reads the caption tracks from the watch page of video id.
func (f *Fetcher) ListTracks(ctx context.Context, id string) ([]Track, error) {
	page, err := f.get(ctx, f.baseURL+"/watch?v="+url.QueryEscape(id))
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", id, err)
	}
	captions, err := extractCaptionsJSON(string(page))
	if err != nil {
		return nil, fmt.Errorf("video %s: %w", id, err)
	}

	list := gjson.Get(captions, "playerCaptionsTracklistRenderer.captionTracks")
	if !list.IsArray() || len(list.Array()) == 0 {
		return nil, fmt.Errorf("video %s: %w", id, ErrCaptionsDisabled)
	}

	var tracks []Track
	list.ForEach(func(_, t gjson.Result) bool {
		baseURL := t.Get("baseUrl").String()
		if baseURL == "" {
			return true
		}
		if strings.HasPrefix(baseURL, "/") {
			baseURL = f.baseURL + baseURL
		}
		name := t.Get("name.simpleText").String()
		if name == "" {
			name = t.Get("name.runs.0.text").String()
		}
		tracks = append(tracks, Track{
			BaseURL:      baseURL,
			LanguageCode: t.Get("languageCode").String(),
			Name:         name,
			Generated:    t.Get("kind").String() == "asr",
		})
		return true
	})
	if len(tracks) == 0 {
		return nil, fmt.Errorf("video %s: %w", id, ErrCaptionsDisabled)
	}
	return tracks, nil
}

func extractCaptionsJSON(page string) (string, error) {
	_, rest, found := strings.Cut(page, `"captions":`)
	if !found {
		if strings.Contains(page, `class="g-recaptcha"`) {
			return "", ErrRateLimited
		}
		if !strings.Contains(page, `"playabilityStatus":`) {
			return "", ErrVideoUnavailable
		}
		return "", ErrCaptionsDisabled
	}

	captions, _, _ := strings.Cut(rest, `,"videoDetails`)
	captions = strings.ReplaceAll(captions, "\n", "")
	if !gjson.Valid(captions) {
		return "", fmt.Errorf("%w: captions json", ErrMalformedResponse)
	}
	return captions, nil
}

// chooseTrack prefers a manually created track over a generated one, then
// the earliest language in languages.
func chooseTrack(tracks []Track, languages []string) (Track, error) {
	for _, generated := range []bool{false, true} {
		for _, lang := range languages {
			for _, t := range tracks {
				if t.Generated == generated && t.LanguageCode == lang {
					return t, nil
				}
			}
		}
	}

	available := make([]string, 0, len(tracks))
	for _, t := range tracks {
		available = append(available, t.LanguageCode)
	}
	return Track{}, fmt.Errorf("%w: wanted %v, available %v", ErrNoTranscript, languages, available)
}

type timedText struct {
	Texts []struct {
		Body string `xml:",chardata"`
	} `xml:"text"`
}

func parseTimedText(body []byte) (string, error) {
	var doc timedText
	if err := xml.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: timed text: %v", ErrMalformedResponse, err)
	}

	parts := make([]string, 0, len(doc.Texts))
	for _, t := range doc.Texts {
		line := formattingTags.ReplaceAllString(html.UnescapeString(t.Body), "")
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, " "), nil
}

func (f *Fetcher) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept-Language", "en-US")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		return nil, &StatusError{URL: target, Code: resp.StatusCode}
	}
	return body, nil
}

// IsRateLimited reports whether err came from youtube throttling.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}
