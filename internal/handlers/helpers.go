package handlers

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// originPatterns turns configured origins into host patterns for
// websocket.AcceptOptions. Entries may be bare hosts ("example.com",
// "*.example.com") or full origins ("https://example.com:8443").
func originPatterns(origins []string) (patterns []string, allowAll bool) {
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
			continue
		case o == "*":
			return nil, true
		case strings.Contains(o, "://"):
			if u, err := url.Parse(o); err == nil && u.Host != "" {
				patterns = append(patterns, u.Host)
			}
		default:
			patterns = append(patterns, o)
		}
	}
	return patterns, false
}
