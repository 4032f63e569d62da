// Package export serializes a flat post view for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

// Format is an export serialization.
type Format string

const (
	FormatJSON     Format = "json"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatURLs     Format = "urls"
	FormatHTML     Format = "html"
)

// Formats lists the supported formats.
var Formats = []Format{FormatJSON, FormatCSV, FormatMarkdown, FormatURLs, FormatHTML}

// ParseFormat validates a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "":
		return FormatJSON, nil
	case "md":
		return FormatMarkdown, nil
	case FormatJSON, FormatCSV, FormatMarkdown, FormatURLs, FormatHTML:
		return f, nil
	}
	return "", &domain.ConfigurationError{Input: s, Reason: "unknown export format"}
}

// ContentType is the MIME type served for f.
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatMarkdown:
		return "text/markdown; charset=utf-8"
	case FormatURLs:
		return "text/plain; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	}
	return "application/json"
}

// Extension is the file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatURLs:
		return "txt"
	}
	return string(f)
}

// FileName returns posts-<handle>-<unix millis>.<ext>.
func FileName(handle string, f Format, now time.Time) string {
	handle = strings.TrimPrefix(handle, "@")
	handle = strings.NewReplacer("/", "_", "\\", "_", " ", "_").Replace(handle)
	return fmt.Sprintf("posts-%s-%d.%s", handle, now.UnixMilli(), f.Extension())
}

// Write serializes posts in format f. The posts are written exactly as given;
// callers pass the currently filtered view with crosspost groups flattened.
func Write(w io.Writer, f Format, handle string, posts []domain.Post, now time.Time) error {
	switch f {
	case FormatJSON:
		return writeJSON(w, handle, posts, now)
	case FormatCSV:
		return writeCSV(w, posts)
	case FormatMarkdown:
		return writeMarkdown(w, handle, posts, now)
	case FormatURLs:
		return writeURLs(w, posts)
	case FormatHTML:
		return writeHTML(w, handle, posts, now)
	}
	return &domain.ConfigurationError{Input: string(f), Reason: "unknown export format"}
}

// isoMillis matches the millisecond UTC timestamps of the web exports.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w io.Writer, handle string, posts []domain.Post, now time.Time) error {
	records := make([]json.RawMessage, 0, len(posts))
	for _, p := range posts {
		if len(p.Raw) > 0 {
			records = append(records, p.Raw)
			continue
		}
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal post %s: %w", p.URI, err)
		}
		records = append(records, b)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		User       string            `json:"user"`
		ExportDate string            `json:"exportDate"`
		PostCount  int               `json:"postCount"`
		Posts      []json.RawMessage `json:"posts"`
	}{
		User:       handle,
		ExportDate: now.UTC().Format(isoMillis),
		PostCount:  len(posts),
		Posts:      records,
	})
}

var csvHeader = []string{
	"uri", "platform", "author_handle", "text", "likes", "reposts", "replies",
	"createdAt", "is_repost", "repost_author_handle",
}

func writeCSV(w io.Writer, posts []domain.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, p := range posts {
		var repostAuthor string
		if p.RepostAuthor != nil {
			repostAuthor = p.RepostAuthor.Handle
		}
		row := []string{
			p.URI,
			string(p.Platform),
			p.Author.Handle,
			p.Text,
			strconv.FormatInt(p.LikeCount, 10),
			strconv.FormatInt(p.RepostCount, 10),
			strconv.FormatInt(p.ReplyCount, 10),
			p.CreatedAt.UTC().Format(isoMillis),
			strconv.FormatBool(p.IsRepost),
			repostAuthor,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// Link returns the public web link of a post, falling back to its URI.
func Link(p domain.Post) string {
	if p.URL != "" {
		return p.URL
	}
	return p.URI
}

func writeURLs(w io.Writer, posts []domain.Post) error {
	for _, p := range posts {
		if _, err := fmt.Fprintln(w, Link(p)); err != nil {
			return err
		}
	}
	return nil
}
