// Package feeds publishes the activity log as RSS 2.0, Atom and JSON
// feeds. Every record becomes one item: the title is the summary, the date
// is the creation time, and the connector, context, action and IP become
// categories. Feed readers depend on this mapping staying stable.
package feeds

import (
	"encoding/xml"
	"time"
)

// Item is the format-neutral form of one record in a feed.
type Item struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Link       string    `json:"link"`
	Date       time.Time `json:"date"`
	Author     string    `json:"author,omitempty"`
	Categories []string  `json:"categories"`
}

// Feed is the format-neutral feed document.
type Feed struct {
	Title   string    `json:"title"`
	Link    string    `json:"link"`
	Updated time.Time `json:"updated"`
	Items   []Item    `json:"items"`
}

// --- RSS 2.0 ---

type rssDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	DC      string     `xml:"xmlns:dc,attr"`
	Channel rssChannel `xml:"channel"`
}

type rssChannel struct {
	Title         string    `xml:"title"`
	Link          string    `xml:"link"`
	Description   string    `xml:"description"`
	LastBuildDate string    `xml:"lastBuildDate"`
	Items         []rssItem `xml:"item"`
}

type rssItem struct {
	Title      string   `xml:"title"`
	Link       string   `xml:"link"`
	GUID       rssGUID  `xml:"guid"`
	PubDate    string   `xml:"pubDate"`
	Creator    string   `xml:"dc:creator,omitempty"`
	Categories []string `xml:"category"`
}

type rssGUID struct {
	IsPermaLink bool   `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// --- Atom ---

type atomFeed struct {
	XMLName xml.Name    `xml:"http://www.w3.org/2005/Atom feed"`
	ID      string      `xml:"id"`
	Title   string      `xml:"title"`
	Updated string      `xml:"updated"`
	Link    atomLink    `xml:"link"`
	Entries []atomEntry `xml:"entry"`
}

type atomLink struct {
	Href string `xml:"href,attr"`
	Rel  string `xml:"rel,attr,omitempty"`
}

type atomEntry struct {
	ID         string         `xml:"id"`
	Title      string         `xml:"title"`
	Updated    string         `xml:"updated"`
	Link       atomLink       `xml:"link"`
	Author     *atomAuthor    `xml:"author,omitempty"`
	Categories []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}
