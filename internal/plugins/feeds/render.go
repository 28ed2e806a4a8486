package feeds

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// AuthorDirectory resolves a record's user ID to a display name.
type AuthorDirectory interface {
	DisplayName(ctx context.Context, userID int64) (string, error)
}

// Renderer writes a feed in one wire format.
type Renderer struct {
	ContentType string
	Write       func(w io.Writer, feed *Feed) error
}

// renderers maps the :format path segment to its renderer.
var renderers = map[string]Renderer{
	"rss":  {ContentType: "application/rss+xml; charset=UTF-8", Write: WriteRSS},
	"atom": {ContentType: "application/atom+xml; charset=UTF-8", Write: WriteAtom},
	"json": {ContentType: "application/json; charset=UTF-8", Write: WriteJSON},
}

// RendererFor returns the renderer for a format name.
func RendererFor(format string) (Renderer, bool) {
	r, ok := renderers[format]
	return r, ok
}

// BuildFeed maps a page of records to feed items. Authors are looked up
// once per user; unresolvable authors are left blank.
func BuildFeed(ctx context.Context, page *records.Page, title, baseURL string, authors AuthorDirectory) *Feed {
	baseURL = strings.TrimRight(baseURL, "/")
	feed := &Feed{
		Title: title,
		Link:  baseURL,
		Items: make([]Item, 0, len(page.Records)),
	}

	names := map[int64]string{}
	for i := range page.Records {
		rec := &page.Records[i]

		author, seen := names[rec.UserID]
		if !seen && authors != nil && rec.UserID > 0 {
			if name, err := authors.DisplayName(ctx, rec.UserID); err == nil {
				author = name
			}
			names[rec.UserID] = author
		}

		feed.Items = append(feed.Items, Item{
			ID:         rec.ID,
			Title:      rec.Summary,
			Link:       baseURL + "/api/v1/records?record=" + strconv.FormatInt(rec.ID, 10),
			Date:       rec.Created.UTC(),
			Author:     author,
			Categories: categories(rec),
		})
		if rec.Created.After(feed.Updated) {
			feed.Updated = rec.Created.UTC()
		}
	}
	if feed.Updated.IsZero() {
		feed.Updated = time.Now().UTC()
	}
	return feed
}

// categories returns the non-empty connector, context, action and IP.
func categories(rec *records.Record) []string {
	out := make([]string, 0, 4)
	for _, v := range []string{rec.Connector, rec.Context, rec.Action, rec.IP} {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

// WriteRSS renders feed as RSS 2.0.
func WriteRSS(w io.Writer, feed *Feed) error {
	doc := rssDocument{
		Version: "2.0",
		DC:      "http://purl.org/dc/elements/1.1/",
		Channel: rssChannel{
			Title:         feed.Title,
			Link:          feed.Link,
			Description:   feed.Title,
			LastBuildDate: feed.Updated.Format(time.RFC1123Z),
			Items:         make([]rssItem, 0, len(feed.Items)),
		},
	}
	for _, it := range feed.Items {
		doc.Channel.Items = append(doc.Channel.Items, rssItem{
			Title:      it.Title,
			Link:       it.Link,
			GUID:       rssGUID{Value: guid(feed.Link, it.ID)},
			PubDate:    it.Date.Format(time.RFC1123Z),
			Creator:    it.Author,
			Categories: it.Categories,
		})
	}
	return writeXML(w, doc)
}

// WriteAtom renders feed as Atom 1.0.
func WriteAtom(w io.Writer, feed *Feed) error {
	doc := atomFeed{
		ID:      feed.Link + "/feeds/atom",
		Title:   feed.Title,
		Updated: feed.Updated.Format(time.RFC3339),
		Link:    atomLink{Href: feed.Link},
		Entries: make([]atomEntry, 0, len(feed.Items)),
	}
	for _, it := range feed.Items {
		entry := atomEntry{
			ID:      guid(feed.Link, it.ID),
			Title:   it.Title,
			Updated: it.Date.Format(time.RFC3339),
			Link:    atomLink{Href: it.Link, Rel: "alternate"},
		}
		if it.Author != "" {
			entry.Author = &atomAuthor{Name: it.Author}
		}
		for _, c := range it.Categories {
			entry.Categories = append(entry.Categories, atomCategory{Term: c})
		}
		doc.Entries = append(doc.Entries, entry)
	}
	return writeXML(w, doc)
}

// WriteJSON renders feed as a JSON document.
func WriteJSON(w io.Writer, feed *Feed) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(feed); err != nil {
		return fmt.Errorf("encoding json feed: %w", err)
	}
	return nil
}

func writeXML(w io.Writer, doc any) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return fmt.Errorf("writing xml header: %w", err)
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding xml feed: %w", err)
	}
	return enc.Close()
}

// guid is a stable, non-URL identifier for a record within this feed.
func guid(link string, id int64) string {
	return fmt.Sprintf("%s#record-%d", link, id)
}
