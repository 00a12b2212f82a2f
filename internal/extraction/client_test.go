package extraction

import (
	"context"
	"errors"
	"strings"
	"testing"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/llm"
	"screening-pipeline/internal/logging"
	"screening-pipeline/pkg/models"
)

type staticFetcher struct {
	doc *Document
	err error
}

func (f *staticFetcher) Fetch(ctx context.Context, locator string) (*Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	d := *f.doc
	d.Locator = locator
	return &d, nil
}

type scriptedCompleter struct {
	reply string
	err   error
	reqs  []llm.CompletionRequest
}

func (c *scriptedCompleter) Complete(ctx context.Context, req llm.CompletionRequest) (string, error) {
	c.reqs = append(c.reqs, req)
	return c.reply, c.err
}

func newTestClient(doc *Document, completer llm.Completer) *Client {
	return NewClient(config.Default(), &staticFetcher{doc: doc}, NewDocconvConverter(), completer, logging.NewNop())
}

func textDoc(body string) *Document {
	return &Document{ContentType: "text/plain; charset=utf-8", Filename: "resume.txt", Data: []byte(body)}
}

var ref = models.AppliedReference{ID: "app-1", JobID: "job-1", DocumentURL: "https://files.example.com/app-1.txt"}

func TestExtractBuildsProfile(t *testing.T) {
	completer := &scriptedCompleter{reply: "```json\n" + `{
  "name": "  Jane Doe ",
  "email": "Jane.Doe@Example.COM",
  "phone": "+1 555 0100",
  "skills": ["Go", "go", " PostgreSQL ", ""],
  "summary": "Backend engineer.",
  "total_experience_years": 4.5,
  "experience": [{"company": "Acme", "role": "Engineer", "duration": "2019-2023", "description": "APIs"}],
  "projects": [{"name": "queue", "technologies": ["go", "redis"]}]
}` + "\n```"}

	client := newTestClient(textDoc("Jane Doe\nBackend engineer with Go and PostgreSQL experience."), completer)

	profile, err := client.Extract(context.Background(), ref)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}

	if profile.Name != "Jane Doe" {
		t.Fatalf("name not trimmed: %q", profile.Name)
	}
	if profile.Email != "jane.doe@example.com" {
		t.Fatalf("email not normalised: %q", profile.Email)
	}
	if strings.Join(profile.Skills, ",") != "go,postgresql" {
		t.Fatalf("skills not normalised: %v", profile.Skills)
	}
	if profile.ApplicationID != "app-1" || profile.JobID != "job-1" || profile.ResumeURL != ref.DocumentURL {
		t.Fatalf("reference fields not carried over: %+v", profile)
	}
	if profile.Education == nil || profile.Interests == nil {
		t.Fatal("missing lists should be empty, not nil")
	}
	if len(completer.reqs) != 1 || !strings.Contains(completer.reqs[0].User, "Backend engineer") {
		t.Fatalf("résumé text not sent to the reasoning service: %+v", completer.reqs)
	}
	if completer.reqs[0].System == "" {
		t.Fatal("system instruction missing")
	}
}

func TestExtractMissingFieldsAreUnknown(t *testing.T) {
	client := newTestClient(textDoc("A résumé with very little structure."), &scriptedCompleter{reply: `{"name": "", "email": "not-an-email"}`})

	profile, err := client.Extract(context.Background(), ref)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if profile.Email != "" {
		t.Fatalf("invalid email should become unknown, got %q", profile.Email)
	}
	if profile.IdentityKey() != "application:app-1" {
		t.Fatalf("profile without email should key on application, got %q", profile.IdentityKey())
	}
}

func TestExtractEmptyDocument(t *testing.T) {
	completer := &scriptedCompleter{reply: `{}`}
	client := newTestClient(textDoc("   \n  short "), completer)

	_, err := client.Extract(context.Background(), ref)
	var ee *EmptyDocumentError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmptyDocumentError, got %v", err)
	}
	if ee.Length != 5 || ee.Minimum != 10 {
		t.Fatalf("unexpected lengths: %+v", ee)
	}
	if len(completer.reqs) != 0 {
		t.Fatal("reasoning service must not be called for empty documents")
	}
}

func TestExtractMalformedResponse(t *testing.T) {
	client := newTestClient(textDoc("Jane Doe, ten years of Go."), &scriptedCompleter{reply: "I'm sorry, I can't read this résumé."})

	_, err := client.Extract(context.Background(), ref)
	if !llm.IsMalformed(err) {
		t.Fatalf("expected MalformedResponseError, got %v", err)
	}
}

func TestExtractPropagatesFetchErrors(t *testing.T) {
	fetchErr := &FetchError{Locator: ref.DocumentURL, StatusCode: 403}
	client := NewClient(config.Default(), &staticFetcher{err: fetchErr}, NewDocconvConverter(), &scriptedCompleter{}, logging.NewNop())

	_, err := client.Extract(context.Background(), ref)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 403 {
		t.Fatalf("expected FetchError 403, got %v", err)
	}
}

func TestExtractUnsupportedDocument(t *testing.T) {
	doc := &Document{ContentType: "image/png", Filename: "scan.png", Data: []byte{0x89, 'P', 'N', 'G', 0x00, 0xff}}
	client := newTestClient(doc, &scriptedCompleter{})

	if _, err := client.Extract(context.Background(), ref); !errors.Is(err, ErrUnsupportedDocument) {
		t.Fatalf("expected ErrUnsupportedDocument, got %v", err)
	}
}
