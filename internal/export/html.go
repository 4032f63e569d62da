package export

import (
	"html/template"
	"io"
	"time"

	"github.com/CrispStrobe/allmyposts/internal/domain"
)

var pageTemplate = template.Must(template.New("posts").Funcs(template.FuncMap{
	"link": Link,
	"date": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04 MST") },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Posts by {{.User}}</title>
</head>
<body>
<h1>Posts by {{.User}}</h1>
<p>Exported {{date .ExportDate}}, {{len .Posts}} posts.</p>
{{range .Posts}}<article class="post {{.Platform}}">
<header><strong>{{with .Author.DisplayName}}{{.}} {{end}}{{.Author.Handle}}</strong> <time datetime="{{.CreatedAt.UTC.Format "2006-01-02T15:04:05Z07:00"}}">{{date .CreatedAt}}</time>{{if and .IsRepost .RepostAuthor}} <em>reposted by {{.RepostAuthor.Handle}}</em>{{end}}</header>
<p>{{.Text}}</p>
{{range .Media}}{{if eq .Kind "image"}}<img src="{{.URL}}" alt="{{.Alt}}">
{{end}}{{end}}<footer>{{.LikeCount}} likes, {{.RepostCount}} reposts, {{.ReplyCount}} replies. <a href="{{link .}}">Open</a></footer>
</article>
{{end}}</body>
</html>
`))

func writeHTML(w io.Writer, handle string, posts []domain.Post, now time.Time) error {
	return pageTemplate.Execute(w, struct {
		User       string
		ExportDate time.Time
		Posts      []domain.Post
	}{handle, now, posts})
}
