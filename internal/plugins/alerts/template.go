package alerts

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/keyxmakerx/stream/internal/plugins/records"
)

// Tag names available in alert templates as %%name%%.
const (
	TagSummary    = "summary"
	TagCreated    = "created"
	TagAuthor     = "author"
	TagAuthorRole = "author_role"
	TagConnector  = "connector"
	TagContext    = "context"
	TagAction     = "action"
	TagIP         = "ip"
	TagObjectID   = "object_id"
	TagRecordID   = "record_id"
	TagSiteID     = "site_id"
	TagBlogID     = "blog_id"
)

// TagNames lists every supported tag, for adapter field help.
var TagNames = []string{
	TagSummary, TagCreated, TagAuthor, TagAuthorRole, TagConnector, TagContext,
	TagAction, TagIP, TagObjectID, TagRecordID, TagSiteID, TagBlogID,
}

// tagPattern matches one %%tag%% marker.
var tagPattern = regexp.MustCompile(`%%([a-zA-Z0-9_]+)%%`)

// Tags holds the resolved tag values for one record.
type Tags map[string]string

// BuildTags resolves the tag set for rec. The author is looked up through
// users and is empty when unknown.
func BuildTags(ctx context.Context, rec *records.Record, users UserDirectory) Tags {
	tags := Tags{
		TagSummary:    rec.Summary,
		TagAuthorRole: rec.UserRole,
		TagConnector:  rec.Connector,
		TagContext:    rec.Context,
		TagAction:     rec.Action,
		TagIP:         rec.IP,
		TagRecordID:   strconv.FormatInt(rec.ID, 10),
		TagSiteID:     strconv.FormatInt(rec.SiteID, 10),
		TagBlogID:     strconv.FormatInt(rec.BlogID, 10),
	}
	if rec.ObjectID != 0 {
		tags[TagObjectID] = strconv.FormatInt(rec.ObjectID, 10)
	}
	if !rec.Created.IsZero() {
		tags[TagCreated] = rec.Created.UTC().Format(time.RFC3339)
	}

	if users != nil && rec.UserID != 0 {
		name, err := users.DisplayName(ctx, rec.UserID)
		if err != nil {
			slog.Debug("alert author not resolvable",
				slog.Int64("user_id", rec.UserID),
				slog.Any("error", err),
			)
		} else {
			tags[TagAuthor] = name
		}
	}
	return tags
}

// RenderTemplate replaces every %%tag%% in tpl. Tags outside the supported
// set, or without a value for this record, render as the empty string.
func RenderTemplate(tpl string, tags Tags) string {
	return tagPattern.ReplaceAllStringFunc(tpl, func(marker string) string {
		name := marker[2 : len(marker)-2]
		if !isTag(name) {
			return ""
		}
		return tags[name]
	})
}

// RenderParams renders every templated action parameter.
func RenderParams(params map[string]string, tags Tags) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = RenderTemplate(v, tags)
	}
	return out
}

func isTag(name string) bool {
	for _, t := range TagNames {
		if t == name {
			return true
		}
	}
	return false
}
