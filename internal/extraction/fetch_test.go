package extraction

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"screening-pipeline/internal/config"
)

func TestResolveShareLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{
			in:   "https://drive.google.com/file/d/1AbC_d-9/view?usp=sharing",
			want: "https://drive.google.com/uc?export=download&id=1AbC_d-9",
		},
		{
			in:   "https://drive.google.com/open?id=XYZ123",
			want: "https://drive.google.com/uc?export=download&id=XYZ123",
		},
		{
			in:   "https://docs.google.com/document/d/DOC42/edit",
			want: "https://docs.google.com/document/d/DOC42/export?format=docx",
		},
		{
			in:   "https://www.dropbox.com/s/abc/resume.pdf?dl=0",
			want: "https://www.dropbox.com/s/abc/resume.pdf?dl=1",
		},
		{
			in:   "https://files.example.com/resumes/jane.pdf",
			want: "https://files.example.com/resumes/jane.pdf",
		},
	}

	for _, tt := range tests {
		if got := ResolveShareLink(tt.in); got != tt.want {
			t.Errorf("ResolveShareLink(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestHTTPFetcherDownloads(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="jane-doe.pdf"`)
		w.Write([]byte("%PDF-1.4 fake"))
	}))
	defer srv.Close()

	cfg := config.Default()
	f := NewHTTPFetcher(cfg, srv.Client())

	doc, err := f.Fetch(context.Background(), srv.URL+"/r/1")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if doc.Filename != "jane-doe.pdf" {
		t.Fatalf("expected filename from Content-Disposition, got %q", doc.Filename)
	}
	if gotUA != cfg.Documents.UserAgent {
		t.Fatalf("user agent not sent, got %q", gotUA)
	}
	if DetectMimeType(doc) != mimePDF {
		t.Fatalf("expected pdf, got %s", DetectMimeType(doc))
	}
}

func TestHTTPFetcherNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewHTTPFetcher(config.Default(), srv.Client()).Fetch(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", fe.StatusCode)
	}
}

func TestHTTPFetcherSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Documents.MaxBytes = 1024

	_, err := NewHTTPFetcher(cfg, srv.Client()).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, ErrDocumentTooLarge) {
		t.Fatalf("expected ErrDocumentTooLarge, got %v", err)
	}
}

func TestHTTPFetcherStorageKeys(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("Jane Doe, Go engineer"))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Documents.StorageBaseURL = srv.URL + "/bucket/"

	if _, err := NewHTTPFetcher(cfg, srv.Client()).Fetch(context.Background(), "resumes/42.txt"); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotPath != "/bucket/resumes/42.txt" {
		t.Fatalf("unexpected path %q", gotPath)
	}

	cfg.Documents.StorageBaseURL = ""
	if _, err := NewHTTPFetcher(cfg, srv.Client()).Fetch(context.Background(), "resumes/42.txt"); err == nil {
		t.Fatal("expected error for storage key without base URL")
	}
}

func TestDriveConfirmURLForm(t *testing.T) {
	page := `<html><body>
<p>Google Drive can't scan this file for viruses.</p>
<form id="download-form" action="https://drive.usercontent.google.com/download" method="get">
  <input type="submit" value="Download anyway">
  <input type="hidden" name="id" value="FILE1">
  <input type="hidden" name="export" value="download">
  <input type="hidden" name="confirm" value="t">
  <input type="hidden" name="uuid" value="abc-123">
</form></body></html>`

	got, ok := driveConfirmURL("https://drive.google.com/uc?export=download&id=FILE1", []byte(page))
	if !ok {
		t.Fatal("expected confirm URL")
	}
	for _, part := range []string{"https://drive.usercontent.google.com/download?", "id=FILE1", "confirm=t", "uuid=abc-123"} {
		if !strings.Contains(got, part) {
			t.Fatalf("confirm URL %q missing %q", got, part)
		}
	}
}

func TestDriveConfirmURLLegacyLink(t *testing.T) {
	page := `<html><body><a href="/uc?export=download&amp;confirm=Xy12&amp;id=FILE2">Download anyway</a></body></html>`

	got, ok := driveConfirmURL("https://drive.google.com/uc?export=download&id=FILE2", []byte(page))
	if !ok {
		t.Fatal("expected confirm URL")
	}
	if got != "https://drive.google.com/uc?export=download&confirm=Xy12&id=FILE2" {
		t.Fatalf("unexpected URL %q", got)
	}
}

func TestDriveConfirmURLNoInterstitial(t *testing.T) {
	if _, ok := driveConfirmURL("https://drive.google.com/uc?id=x", []byte("<html><body>Sign in</body></html>")); ok {
		t.Fatal("expected no confirm URL")
	}
}
