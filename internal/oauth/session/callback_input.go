package session

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseCallbackInput extracts the OAuth redirect parameters from a URL the
// user pasted back into the CLI. Users copy callback URLs in many shapes
// (full URL, bare query string, host-relative path), so the parser is
// deliberately permissive about the envelope while leaving parameter
// validation to HandleCallback. Returns an error only when no recognizable
// code or error parameter is present.
func ParseCallbackInput(input string) (url.Values, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, fmt.Errorf("callback input is empty")
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		switch {
		case strings.HasPrefix(candidate, "?"):
			candidate = "http://localhost" + candidate
		case strings.ContainsAny(candidate, "/?#") || strings.Contains(candidate, ":"):
			candidate = "http://" + candidate
		case strings.Contains(candidate, "="):
			candidate = "http://localhost/?" + candidate
		default:
			return nil, fmt.Errorf("unrecognized callback input %q", trimmed)
		}
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return nil, fmt.Errorf("invalid callback URL: %w", err)
	}

	query := parsed.Query()

	// Some authorization servers deliver parameters in the fragment instead
	// of the query string.
	if parsed.Fragment != "" {
		if fragQuery, errFrag := url.ParseQuery(parsed.Fragment); errFrag == nil {
			for key, values := range fragQuery {
				if query.Get(key) == "" && len(values) > 0 {
					query.Set(key, values[0])
				}
			}
		}
	}

	// A code of the form "abc#xyz" carries the state after the hash.
	if code := query.Get("code"); code != "" && query.Get("state") == "" && strings.Contains(code, "#") {
		parts := strings.SplitN(code, "#", 2)
		query.Set("code", parts[0])
		query.Set("state", parts[1])
	}

	if query.Get("code") == "" && query.Get("error") == "" {
		return nil, fmt.Errorf("callback URL carries neither code nor error")
	}

	return query, nil
}
