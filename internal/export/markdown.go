package export

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

const headingLength = 60

func writeMarkdown(w io.Writer, handle string, posts []domain.Post, now time.Time) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "# Posts by %s\n\n", handle)
	fmt.Fprintf(bw, "Exported %s, %d posts.\n", now.UTC().Format(time.RFC3339), len(posts))

	for _, p := range posts {
		fmt.Fprintf(bw, "\n## %s\n\n", heading(p))

		byline := fmt.Sprintf("**%s** on %s, %s", authorName(p.Author), p.Platform, p.CreatedAt.UTC().Format("2006-01-02 15:04 MST"))
		if p.IsRepost && p.RepostAuthor != nil {
			byline += fmt.Sprintf(" (reposted by %s)", p.RepostAuthor.Handle)
		}
		fmt.Fprintln(bw, byline)
		fmt.Fprintln(bw)

		if p.Text != "" {
			for _, line := range strings.Split(p.Text, "\n") {
				fmt.Fprintf(bw, "> %s\n", line)
			}
			fmt.Fprintln(bw)
		}
		for _, m := range p.Media {
			if m.Kind == "image" && m.URL != "" {
				fmt.Fprintf(bw, "![%s](%s)\n", m.Alt, m.URL)
			}
		}

		fmt.Fprintf(bw, "%d likes, %d reposts, %d replies. [Open](%s)\n",
			p.LikeCount, p.RepostCount, p.ReplyCount, Link(p))
	}

	return bw.Flush()
}

func heading(p domain.Post) string {
	line, _, _ := strings.Cut(strings.TrimSpace(p.Text), "\n")
	if line == "" {
		return "(no text)"
	}
	return domain.Truncate(line, headingLength)
}

func authorName(a domain.Author) string {
	if a.DisplayName != "" {
		return fmt.Sprintf("%s (%s)", a.DisplayName, a.Handle)
	}
	return a.Handle
}
