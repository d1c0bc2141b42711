package scrape

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Size caps keep scraped context from blowing up the downstream prompt.
const (
	maxContentChars = 8000
	maxTableChars   = 2000
	maxLinks        = 50
	maxHeadings     = 30
	maxNames        = 40
)

// PageData is the structured extraction of one fetched page.
type PageData struct {
	URL       string     `json:"url"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	Tables    [][]string `json:"tables,omitempty"`
	Links     []Link     `json:"links,omitempty"`
	Emails    []string   `json:"emails,omitempty"`
	Phones    []string   `json:"phones,omitempty"`
	Headings  []string   `json:"headings,omitempty"`
	Names     []string   `json:"names,omitempty"`
	FetchedAt time.Time  `json:"fetched_at"`
}

type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+\d{1,3}[\s-]?)?(?:\(\d{2,4}\)[\s-]?)?\d{3,5}[\s-]?\d{3,5}(?:[\s-]?\d{2,5})?`)
	// Two-to-four capitalized words, optionally led by an honorific.
	namePattern = regexp.MustCompile(`(?:(?:Dr|Prof|Mr|Mrs|Ms)\.\s+)?[A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,3}`)
)

// Extract parses fetched markup into structured fields.
func Extract(pageURL string, markup []byte) (*PageData, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, err
	}

	doc.Find("script, style, noscript, nav, footer, iframe").Remove()

	data := &PageData{
		URL:   pageURL,
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
	}

	text := collapseWhitespace(doc.Find("body").Text())
	data.Content = capString(text, maxContentChars)

	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		var chars int
		table.Find("tr").EachWithBreak(func(_ int, tr *goquery.Selection) bool {
			var cells []string
			tr.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, collapseWhitespace(cell.Text()))
			})
			if len(cells) == 0 {
				return true
			}
			row := strings.Join(cells, " | ")
			chars += len(row)
			if chars > maxTableChars {
				return false
			}
			data.Tables = append(data.Tables, cells)
			return true
		})
	})

	base, _ := url.Parse(pageURL)
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if len(data.Links) >= maxLinks {
			return false
		}
		href, _ := a.Attr("href")
		resolved := resolveURL(base, href)
		if resolved == "" {
			return true
		}
		data.Links = append(data.Links, Link{
			Text: collapseWhitespace(a.Text()),
			URL:  resolved,
		})
		return true
	})

	doc.Find("h1, h2, h3").Each(func(_ int, h *goquery.Selection) {
		if len(data.Headings) >= maxHeadings {
			return
		}
		if heading := collapseWhitespace(h.Text()); heading != "" {
			data.Headings = append(data.Headings, heading)
		}
	})

	data.Emails = dedupe(emailPattern.FindAllString(text, -1))
	data.Phones = dedupe(filterPhones(phonePattern.FindAllString(text, -1)))
	data.Names = capSlice(dedupe(namePattern.FindAllString(text, -1)), maxNames)

	return data, nil
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if base != nil {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

func filterPhones(candidates []string) []string {
	var phones []string
	for _, candidate := range candidates {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, candidate)
		if len(digits) >= 8 && len(digits) <= 13 {
			phones = append(phones, strings.TrimSpace(candidate))
		}
	}
	return phones
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	var result []string
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		result = append(result, item)
	}
	return result
}

func capSlice(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func capString(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
