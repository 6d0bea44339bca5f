// Package preview получает заголовок, описание и картинки целевой страницы.
package preview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Totarae/shortlink/internal/model"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

const maxBodySize = 1 << 20

var (
	ErrUnsupportedScheme = errors.New("preview: unsupported url scheme")
	ErrBadStatus         = errors.New("preview: unexpected response status")
)

var textPolicy = bluemonday.StrictPolicy()

// Fetcher загружает страницу и разбирает её метаданные.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{client: &http.Client{Timeout: timeout}}
}

// Fetch возвращает превью страницы. Незаполненные поля остаются пустыми.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (model.Preview, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return model.Preview{}, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return model.Preview{}, ErrUnsupportedScheme
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return model.Preview{}, err
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "shortlink-preview/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return model.Preview{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.Preview{}, fmt.Errorf("%w: %d", ErrBadStatus, resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return model.Preview{}, err
	}

	base := u
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL
	}
	return Parse(doc, base), nil
}

// Parse извлекает превью из разобранного документа. Open Graph имеет
// приоритет над <title> и meta description.
func Parse(doc *html.Node, base *url.URL) model.Preview {
	var p model.Preview
	var title, description string

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "title":
				if title == "" && n.FirstChild != nil {
					title = n.FirstChild.Data
				}
			case "meta":
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				content := attr(n, "content")
				switch key {
				case "og:title":
					if p.Title == "" {
						p.Title = content
					}
				case "og:description":
					if p.Description == "" {
						p.Description = content
					}
				case "og:image", "og:image:url":
					if p.Image == "" {
						p.Image = content
					}
				case "description":
					if description == "" {
						description = content
					}
				}
			case "link":
				if p.Favicon == "" && isIconRel(attr(n, "rel")) {
					p.Favicon = attr(n, "href")
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if p.Title == "" {
		p.Title = title
	}
	if p.Description == "" {
		p.Description = description
	}

	p.Title = cleanText(p.Title)
	p.Description = cleanText(p.Description)
	p.Image = absolute(base, p.Image)
	p.Favicon = absolute(base, p.Favicon)
	return p
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

func isIconRel(rel string) bool {
	for _, r := range strings.Fields(strings.ToLower(rel)) {
		if r == "icon" {
			return true
		}
	}
	return false
}

// cleanText убирает разметку и лишние пробелы.
func cleanText(s string) string {
	s = html.UnescapeString(textPolicy.Sanitize(s))
	return strings.Join(strings.Fields(s), " ")
}

func absolute(base *url.URL, ref string) string {
	if ref == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base == nil {
		return r.String()
	}
	return base.ResolveReference(r).String()
}
