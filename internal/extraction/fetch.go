package extraction

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"screening-pipeline/internal/config"
)

const defaultFetchTimeout = 30 * time.Second

// Document is a downloaded résumé
type Document struct {
	Locator     string
	SourceURL   string
	ContentType string
	Filename    string
	Data        []byte
}

// Fetcher downloads the document behind a locator
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (*Document, error)
}

// HTTPFetcher fetches documents over HTTP, resolving cloud-drive share links to
// their direct-download form
type HTTPFetcher struct {
	client      *http.Client
	maxBytes    int64
	userAgent   string
	storageBase string
}

// NewHTTPFetcher creates a fetcher from the documents configuration. A nil client
// gets one with the configured timeout.
func NewHTTPFetcher(cfg *config.Config, client *http.Client) *HTTPFetcher {
	if client == nil {
		timeout := cfg.Documents.FetchTimeout
		if timeout <= 0 {
			timeout = defaultFetchTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	maxBytes := cfg.Documents.MaxBytes
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &HTTPFetcher{
		client:      client,
		maxBytes:    maxBytes,
		userAgent:   cfg.Documents.UserAgent,
		storageBase: cfg.Documents.StorageBaseURL,
	}
}

// Fetch downloads the document. Google Drive virus-scan interstitials are followed once.
func (f *HTTPFetcher) Fetch(ctx context.Context, locator string) (*Document, error) {
	target, err := f.resolveLocator(locator)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}

	doc, err := f.get(ctx, locator, target)
	if err != nil {
		return nil, err
	}

	if isDriveHost(target) && isHTML(doc.ContentType) {
		next, ok := driveConfirmURL(target, doc.Data)
		if ok {
			doc, err = f.get(ctx, locator, next)
			if err != nil {
				return nil, err
			}
		}
	}

	return doc, nil
}

func (f *HTTPFetcher) resolveLocator(locator string) (string, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", fmt.Errorf("empty document locator")
	}

	if strings.HasPrefix(locator, "http://") || strings.HasPrefix(locator, "https://") {
		return ResolveShareLink(locator), nil
	}

	if f.storageBase == "" {
		return "", fmt.Errorf("locator %q is not a URL and no storage base URL is configured", locator)
	}
	return strings.TrimRight(f.storageBase, "/") + "/" + strings.TrimLeft(locator, "/"), nil
}

func (f *HTTPFetcher) get(ctx context.Context, locator, target string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		return nil, &FetchError{Locator: locator, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, &FetchError{Locator: locator, Err: err}
	}
	if int64(len(data)) > f.maxBytes {
		return nil, &FetchError{Locator: locator, Err: ErrDocumentTooLarge}
	}

	return &Document{
		Locator:     locator,
		SourceURL:   resp.Request.URL.String(),
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    filenameFor(resp),
		Data:        data,
	}, nil
}

var (
	driveFilePath = regexp.MustCompile(`^/file/d/([A-Za-z0-9_-]+)`)
	docsPath      = regexp.MustCompile(`^/document/d/([A-Za-z0-9_-]+)`)
)

// ResolveShareLink rewrites known cloud-drive share links to direct-download URLs.
// Unknown URLs are returned unchanged.
func ResolveShareLink(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "drive.google.com":
		if m := driveFilePath.FindStringSubmatch(u.Path); m != nil {
			return driveDownloadURL(m[1])
		}
		if u.Path == "/open" || u.Path == "/uc" {
			if id := u.Query().Get("id"); id != "" {
				return driveDownloadURL(id)
			}
		}
	case host == "docs.google.com":
		if m := docsPath.FindStringSubmatch(u.Path); m != nil {
			return "https://docs.google.com/document/d/" + m[1] + "/export?format=docx"
		}
	case host == "www.dropbox.com" || host == "dropbox.com":
		q := u.Query()
		q.Set("dl", "1")
		u.RawQuery = q.Encode()
		return u.String()
	case host == "1drv.ms" || strings.HasSuffix(host, "onedrive.live.com"):
		q := u.Query()
		q.Set("download", "1")
		u.RawQuery = q.Encode()
		return u.String()
	}

	return raw
}

func driveDownloadURL(id string) string {
	return "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id)
}

func isDriveHost(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	return host == "drive.google.com" || host == "drive.usercontent.google.com"
}

func isHTML(contentType string) bool {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	return mediaType == "text/html"
}

func filenameFor(resp *http.Response) string {
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := mime.ParseMediaType(cd); err == nil {
			if name := params["filename"]; name != "" {
				return name
			}
		}
	}
	return path.Base(resp.Request.URL.Path)
}

var _ Fetcher = (*HTTPFetcher)(nil)
