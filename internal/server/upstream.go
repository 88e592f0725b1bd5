package server

import (
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/server/middleware"
)

// Headers set on proxied requests to describe the accepted key.
const (
	HeaderKeyID       = "X-Keygate-Key-Id"
	HeaderAccountID   = "X-Keygate-Account-Id"
	HeaderPermissions = "X-Keygate-Permissions"
)

const codeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"

// NewUpstream builds a Resource that reverse-proxies to a business service
// at target. The presented API key never leaves the gateway; the upstream
// receives the key context as X-Keygate-* headers instead.
func NewUpstream(name, target, description string, logger *logrus.Logger) (Resource, error) {
	u, err := url.Parse(target)
	if err != nil {
		return Resource{}, fmt.Errorf("upstream %s: parse url: %w", name, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Resource{}, fmt.Errorf("upstream %s: url must be absolute http(s), got %q", name, target)
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(u)
			pr.SetXForwarded()

			out := pr.Out
			out.Header.Del("X-API-Key")
			out.Header.Del("Authorization")
			for _, h := range []string{HeaderKeyID, HeaderAccountID, HeaderPermissions} {
				out.Header.Del(h)
			}
			if q := out.URL.Query(); q.Has("api_key") {
				q.Del("api_key")
				out.URL.RawQuery = q.Encode()
			}

			if kc := middleware.GetKeyContext(pr.In.Context()); kc != nil {
				out.Header.Set(HeaderKeyID, strconv.FormatInt(kc.KeyID, 10))
				out.Header.Set(HeaderAccountID, strconv.FormatInt(kc.AccountID, 10))
				out.Header.Set(HeaderPermissions, strings.Join(kc.Permissions, ","))
			}
			if id := middleware.GetRequestID(pr.In.Context()); id != "" {
				out.Header.Set("X-Request-ID", id)
			}
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.WithError(err).WithFields(logrus.Fields{
				"upstream":   name,
				"request_id": middleware.GetRequestID(r.Context()),
			}).Error("upstream request failed")
			middleware.WriteError(w, http.StatusBadGateway, codeUpstreamUnavailable,
				"Upstream service unavailable", nil)
		},
	}

	if description == "" {
		description = "Proxied " + name + " service"
	}
	return Resource{Name: name, Description: description, Handler: proxy}, nil
}
