package middleware

import (
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

// CORS builds a CORS middleware from a comma-separated origin
// allow-list.  Origins are compared by normalized host, so
// "https://www.example.com/" and "http://example.com" both match an
// allow-list entry of "example.com".  Requests without an Origin
// header (curl, server-to-server, the payment provider's webhook) are
// always allowed.  An empty allow-list allows everything, which is the
// sensible development default.
func CORS(rawAllowed string) echo.MiddlewareFunc {
	hosts := make(map[string]bool)
	for _, entry := range strings.Split(rawAllowed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		hosts[NormalizeHost(entry)] = true
	}
	return echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			if origin == "" || len(hosts) == 0 {
				return true, nil
			}
			return hosts[NormalizeHost(origin)], nil
		},
		AllowCredentials: true,
	})
}

// NormalizeHost reduces an origin or bare host to a comparable form:
// scheme and path stripped, trailing slash removed, leading "www."
// dropped.
func NormalizeHost(s string) string {
	host := s
	if u, err := url.Parse(s); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	} else {
		host = strings.TrimPrefix(host, "https://")
		host = strings.TrimPrefix(host, "http://")
		host = strings.TrimSuffix(host, "/")
	}
	return strings.TrimPrefix(host, "www.")
}
