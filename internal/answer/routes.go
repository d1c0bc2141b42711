package answer

import "strings"

// PageRoute maps query keywords to one college web page worth scraping.
type PageRoute struct {
	Keywords []string
	URL      string
}

// DefaultRoutes builds the keyword-to-page routing table for a college site.
func DefaultRoutes(baseURL string) []PageRoute {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		return nil
	}
	return []PageRoute{
		{Keywords: []string{"faculty", "professor", "teacher", "staff", "hod"}, URL: base + "/faculty"},
		{Keywords: []string{"admission", "admissions", "apply", "eligibility", "entrance"}, URL: base + "/admissions"},
		{Keywords: []string{"placement", "placements", "recruiter", "salary", "package"}, URL: base + "/placements"},
		{Keywords: []string{"contact", "phone", "email", "address", "office"}, URL: base + "/contact"},
	}
}

// RoutePages returns the deduplicated page URLs whose keywords appear in the
// query, preserving table order.
func RoutePages(query string, routes []PageRoute) []string {
	lowered := strings.ToLower(query)

	var urls []string
	seen := make(map[string]struct{})
	for _, route := range routes {
		for _, keyword := range route.Keywords {
			if !strings.Contains(lowered, keyword) {
				continue
			}
			if _, ok := seen[route.URL]; !ok {
				seen[route.URL] = struct{}{}
				urls = append(urls, route.URL)
			}
			break
		}
	}
	return urls
}
