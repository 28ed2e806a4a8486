package feeds

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// mockAuthors implements AuthorDirectory and counts lookups.
type mockAuthors struct {
	names   map[int64]string
	lookups int
}

func (m *mockAuthors) DisplayName(_ context.Context, id int64) (string, error) {
	m.lookups++
	if name, ok := m.names[id]; ok {
		return name, nil
	}
	return "", errors.New("user not found")
}

func testPage() *records.Page {
	return &records.Page{Total: 3, Records: []records.Record{
		{ID: 3, UserID: 1, Summary: "Hello published", Created: time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC),
			Connector: "posts", Context: "post", Action: "published", IP: "10.0.0.1"},
		{ID: 2, UserID: 1, Summary: "Hello updated", Created: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC),
			Connector: "posts", Context: "post", Action: "updated"},
		{ID: 1, UserID: 9, Summary: "Login <failed>", Created: time.Date(2024, 5, 31, 9, 0, 0, 0, time.UTC),
			Connector: "users", Context: "sessions", Action: "failed_login"},
	}}
}

func TestBuildFeed(t *testing.T) {
	authors := &mockAuthors{names: map[int64]string{1: "Admin"}}
	feed := BuildFeed(context.Background(), testPage(), "Stream", "https://example.com/", authors)

	if len(feed.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(feed.Items))
	}
	first := feed.Items[0]
	if first.Title != "Hello published" || first.Author != "Admin" {
		t.Errorf("unexpected item %+v", first)
	}
	if strings.Join(first.Categories, ",") != "posts,post,published,10.0.0.1" {
		t.Errorf("categories = %v", first.Categories)
	}
	if len(feed.Items[1].Categories) != 3 {
		t.Errorf("empty ip should not become a category: %v", feed.Items[1].Categories)
	}
	if feed.Items[2].Author != "" {
		t.Errorf("unresolvable author should be blank, got %q", feed.Items[2].Author)
	}
	if first.Link != "https://example.com/api/v1/records?record=3" {
		t.Errorf("link = %q", first.Link)
	}
	if !feed.Updated.Equal(first.Date) {
		t.Errorf("updated = %v, want newest item date", feed.Updated)
	}
	if authors.lookups != 2 {
		t.Errorf("expected one lookup per user, got %d", authors.lookups)
	}
}

func TestWriteRSS(t *testing.T) {
	feed := BuildFeed(context.Background(), testPage(), "Stream", "https://example.com", &mockAuthors{names: map[int64]string{1: "Admin"}})

	var buf bytes.Buffer
	if err := WriteRSS(&buf, feed); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		`<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">`,
		`<title>Hello published</title>`,
		`<pubDate>Sun, 02 Jun 2024 09:00:00 +0000</pubDate>`,
		`<category>published</category>`,
		`<dc:creator>Admin</dc:creator>`,
		`<title>Login &lt;failed&gt;</title>`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rss output missing %s", want)
		}
	}

	var parsed rssDocument
	if err := xml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("rss output does not parse: %v", err)
	}
	if len(parsed.Channel.Items) != 3 {
		t.Errorf("expected 3 items, got %d", len(parsed.Channel.Items))
	}
}

func TestWriteAtom(t *testing.T) {
	feed := BuildFeed(context.Background(), testPage(), "Stream", "https://example.com", nil)

	var buf bytes.Buffer
	if err := WriteAtom(&buf, feed); err != nil {
		t.Fatalf("write: %v", err)
	}

	var parsed atomFeed
	if err := xml.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("atom output does not parse: %v", err)
	}
	if len(parsed.Entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(parsed.Entries))
	}
	e := parsed.Entries[0]
	if e.Title != "Hello published" || e.Updated != "2024-06-02T09:00:00Z" || len(e.Categories) != 4 {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Author != nil {
		t.Error("no author expected without a directory")
	}
}

func TestWriteJSON(t *testing.T) {
	feed := BuildFeed(context.Background(), testPage(), "Stream", "https://example.com", nil)

	var buf bytes.Buffer
	if err := WriteJSON(&buf, feed); err != nil {
		t.Fatalf("write: %v", err)
	}
	var decoded Feed
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("json output does not parse: %v", err)
	}
	if len(decoded.Items) != 3 || decoded.Items[2].Title != "Login <failed>" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestRendererFor(t *testing.T) {
	for _, format := range []string{"rss", "atom", "json"} {
		if _, ok := RendererFor(format); !ok {
			t.Errorf("missing renderer for %s", format)
		}
	}
	if _, ok := RendererFor("xml"); ok {
		t.Error("unexpected renderer for xml")
	}
}
