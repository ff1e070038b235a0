package ingest

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/openportal/datainsight/internal/domain"
)

// Response is the transport-level view of one fetched page that pagination
// resolution needs: headers for the Link relation and the request URL for
// same-path re-targeting.
type Response struct {
	StatusCode int
	Status     string
	Header     http.Header
	Body       []byte
	RequestURL *url.URL
}

// ContentType returns the lowercased content-type header.
func (r *Response) ContentType() string {
	return strings.ToLower(r.Header.Get("Content-Type"))
}

// NextLink returns the URL of the rel="next" relation from the Link
// header, or "" when the response advertises none.
func (r *Response) NextLink() string {
	for _, field := range r.Header.Values("Link") {
		for _, entry := range strings.Split(field, ",") {
			parts := strings.Split(entry, ";")
			if len(parts) < 2 {
				continue
			}
			target := strings.TrimSpace(parts[0])
			if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
				continue
			}
			for _, param := range parts[1:] {
				key, val, ok := strings.Cut(strings.TrimSpace(param), "=")
				if !ok || !strings.EqualFold(strings.TrimSpace(key), "rel") {
					continue
				}
				if strings.Trim(strings.TrimSpace(val), `"`) == "next" {
					return strings.Trim(target, "<>")
				}
			}
		}
	}
	return ""
}

// resolveNext decides whether another page exists and computes its target.
// An empty returned URL means pagination is exhausted.
//
//   - nil pointer: fall back to the transport's Link rel=next; otherwise stop.
//   - string pointer: absolute URLs are used as-is, anything else resolves
//     against the connection base URL. Either way the pointer is assumed to
//     encode its own query string, so params reset to empty.
//   - parameter-patch object: merge onto the current params and re-target
//     the previous request's path (not the original path, to tolerate
//     redirects).
//   - any other shape: stop.
func resolveNext(pointer any, resp *Response, baseURL string, current []domain.QueryParam) (string, []domain.QueryParam) {
	switch ptr := pointer.(type) {
	case nil:
		if link := resp.NextLink(); link != "" {
			return link, nil
		}
		return "", current

	case string:
		if ptr == "" {
			if link := resp.NextLink(); link != "" {
				return link, nil
			}
			return "", current
		}
		if strings.HasPrefix(ptr, "http") {
			return ptr, nil
		}
		return joinURL(baseURL, ptr), nil

	case *domain.Record:
		merged := mergeParams(current, ptr)
		path := ""
		if resp.RequestURL != nil {
			path = resp.RequestURL.Path
		}
		return joinURL(baseURL, path), merged

	default:
		return "", current
	}
}

// mergeParams applies a parameter patch: patch keys overwrite every
// same-named current parameter, and new keys append in patch field order.
func mergeParams(current []domain.QueryParam, patch *domain.Record) []domain.QueryParam {
	merged := make([]domain.QueryParam, len(current))
	copy(merged, current)

	for _, key := range patch.Keys() {
		v, _ := patch.Get(key)
		val := paramValue(v)

		replaced := false
		for i := range merged {
			if merged[i].Name == key {
				merged[i].Value = val
				replaced = true
			}
		}
		if !replaced {
			merged = append(merged, domain.QueryParam{Name: key, Value: val})
		}
	}
	return merged
}

// paramValue renders a patch value as a query-string value.
func paramValue(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	default:
		return ""
	}
}

// joinURL resolves ref against base the way urljoin does; a broken base
// falls back to naive concatenation rather than failing the run.
func joinURL(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(ref, "/")
	}
	r, err := url.Parse(ref)
	if err != nil {
		return base
	}
	return b.ResolveReference(r).String()
}

// encodeParams builds a query string preserving parameter order and
// duplicate names.
func encodeParams(params []domain.QueryParam) string {
	var sb strings.Builder
	for i, p := range params {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(p.Name))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(p.Value))
	}
	return sb.String()
}

// withQuery appends an encoded query string to rawURL.
func withQuery(rawURL string, params []domain.QueryParam) string {
	if len(params) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + encodeParams(params)
}
