package httpserver

import (
	"crypto/subtle"
	"net"
	"net/http"

	"github.com/sirupsen/logrus"
)

// basicAuth enforces a single shared password across every request.
func basicAuth(password string, log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if password == "" {
				next.ServeHTTP(w, r)
				return
			}
			_, given, ok := r.BasicAuth()
			if !ok || subtle.ConstantTimeCompare([]byte(given), []byte(password)) != 1 {
				log.WithField("remote", r.RemoteAddr).Warn("httpserver: basic auth rejected")
				w.Header().Set("WWW-Authenticate", `Basic realm="loginguard"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// acl enforces the configured set of allowed source netmasks. An empty list
// allows every source.
func acl(nets []*net.IPNet, log *logrus.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(nets) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				host = r.RemoteAddr
			}
			ip := net.ParseIP(host)
			for _, n := range nets {
				if ip != nil && n.Contains(ip) {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.WithField("remote", r.RemoteAddr).Warn("httpserver: acl rejected")
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	}
}

// ParseACL parses the configured CIDR strings, skipping (and logging)
// anything malformed rather than failing startup over an operator typo.
func ParseACL(cidrs []string, log *logrus.Entry) []*net.IPNet {
	var nets []*net.IPNet
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			log.WithField("cidr", c).Warn("httpserver: skipping malformed acl entry")
			continue
		}
		nets = append(nets, n)
	}
	return nets
}
