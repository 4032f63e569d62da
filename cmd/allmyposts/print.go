package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/CrispStrobe/allmyposts/internal/domain"
	"github.com/CrispStrobe/allmyposts/internal/export"
)

const previewLength = 120

func printFeed(w io.Writer, session *domain.Session) error {
	for _, p := range session.Platforms() {
		if profile := session.Profile(p); profile != nil {
			fmt.Fprintf(w, "%s %s: %d posts, %d followers\n", p, profile.Handle, profile.PostsCount, profile.FollowersCount)
		}
	}

	view := session.View()
	fmt.Fprintf(w, "%d posts, %d top-level items, %d crossposts\n\n", len(view.Posts), len(view.Items), view.Groups())

	for _, item := range view.Items {
		switch v := item.(type) {
		case domain.CrosspostGroup:
			fmt.Fprintf(w, "[crosspost %.2f]\n", v.Similarity)
			printPost(w, v.Posts[0], 1)
			printPost(w, v.Posts[1], 1)
		case domain.Post:
			printThread(w, view.Thread(v), 0)
		}
	}
	return nil
}

func printThread(w io.Writer, t *domain.Thread, depth int) {
	printPost(w, t.Post, depth)
	for _, r := range t.Replies {
		printThread(w, r, depth+1)
	}
}

func printPost(w io.Writer, p domain.Post, depth int) {
	indent := strings.Repeat("  ", depth)
	header := fmt.Sprintf("%s%s %s %s", indent, p.CreatedAt.Local().Format("2006-01-02 15:04"), p.Platform, p.Author.Handle)
	if p.IsRepost && p.RepostAuthor != nil {
		header += " (reposted by " + p.RepostAuthor.Handle + ")"
	}
	fmt.Fprintln(w, header)
	if p.Text != "" {
		text := strings.ReplaceAll(domain.Truncate(p.Text, previewLength), "\n", " ")
		fmt.Fprintf(w, "%s  %s\n", indent, text)
	}
	fmt.Fprintf(w, "%s  %d likes, %d reposts, %d replies  %s\n", indent, p.LikeCount, p.RepostCount, p.ReplyCount, export.Link(p))
}

func printPosts(w io.Writer, posts []domain.Post) {
	for _, p := range posts {
		printPost(w, p, 0)
	}
}
