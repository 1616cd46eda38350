package source

import (
	"net/url"
	"strings"
)

const sheetsHost = "docs.google.com"

// RewriteURL turns Google Sheets page links into direct workbook downloads:
//
//	/spreadsheets/d/e/<key>/pubhtml     -> /spreadsheets/d/e/<key>/pub?output=xlsx
//	/spreadsheets/d/<id>/edit#gid=0     -> /spreadsheets/d/<id>/export?format=xlsx
//
// Export URLs, publish URLs that already pick an output format, and every other
// host are returned unchanged.
func RewriteURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !strings.EqualFold(u.Host, sheetsHost) {
		return raw
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "spreadsheets" || parts[1] != "d" {
		return raw
	}

	// Publish-to-web form: spreadsheets/d/e/<key>/<pubhtml|pub>
	if parts[2] == "e" {
		if len(parts) < 4 {
			return raw
		}
		if len(parts) >= 5 && parts[4] == "pub" && u.Query().Get("output") != "" {
			return raw
		}
		if len(parts) == 4 || parts[4] == "pubhtml" || parts[4] == "pub" {
			return rebuild(u, "/spreadsheets/d/e/"+parts[3]+"/pub", url.Values{"output": {"xlsx"}})
		}
		return raw
	}

	// Share-link form: spreadsheets/d/<id>[/edit|/view|/htmlview]
	if len(parts) >= 4 && parts[3] == "export" {
		return raw
	}
	if len(parts) == 3 || parts[3] == "edit" || parts[3] == "view" || parts[3] == "htmlview" {
		return rebuild(u, "/spreadsheets/d/"+parts[2]+"/export", url.Values{"format": {"xlsx"}})
	}
	return raw
}

func rebuild(u *url.URL, path string, q url.Values) string {
	out := url.URL{
		Scheme:   u.Scheme,
		Host:     u.Host,
		Path:     path,
		RawQuery: q.Encode(),
	}
	if out.Scheme == "" {
		out.Scheme = "https"
	}
	return out.String()
}
