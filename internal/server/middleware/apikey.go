package middleware

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/leadrelay/keygate/internal/model"
	"github.com/leadrelay/keygate/internal/service"
	"github.com/leadrelay/keygate/internal/store"
)

type contextKeyAPIKey string

// KeyContextKey is the context key for the accepted key's KeyContext.
const KeyContextKey contextKeyAPIKey = "api_key_context"

// Rate limit response headers.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
)

// rateLimitExceededMessage is stored on the usage entry of a quota rejection.
const rateLimitExceededMessage = "rate limit exceeded"

// KeyResolver resolves presented secrets and records successful use.
type KeyResolver interface {
	ResolveKey(ctx context.Context, presented string) (*store.KeyCredential, error)
	TouchKey(ctx context.Context, id int64) error
}

// QuotaLimiter counts a request against its key's hourly quota.
type QuotaLimiter interface {
	CheckAndIncrement(ctx context.Context, keyID int64, limit int) (service.Decision, error)
}

// UsageSink accepts usage entries for asynchronous persistence.
type UsageSink interface {
	Record(ctx context.Context, e model.UsageLogEntry)
}

// Authenticator gates requests on a valid API key and its rate limit, then
// records one usage entry per admitted or rejected request.
type Authenticator struct {
	keys    KeyResolver
	limiter QuotaLimiter
	usage   UsageSink
	logger  *logrus.Logger
}

// NewAuthenticator wires the gateway middleware.
func NewAuthenticator(keys KeyResolver, limiter QuotaLimiter, usage UsageSink, logger *logrus.Logger) *Authenticator {
	return &Authenticator{keys: keys, limiter: limiter, usage: usage, logger: logger}
}

// ExtractAPIKey returns the presented secret, looking at the X-API-Key
// header, then an Authorization bearer token, then the api_key query
// parameter.
func ExtractAPIKey(r *http.Request) string {
	if k := strings.TrimSpace(r.Header.Get("X-API-Key")); k != "" {
		return k
	}
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if k := strings.TrimSpace(auth[7:]); k != "" {
			return k
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("api_key"))
}

// Handler is the chi middleware.
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := r.Context()

		presented := ExtractAPIKey(r)
		if presented == "" {
			WriteError(w, http.StatusUnauthorized, CodeMissingAPIKey,
				"API key required. Provide it in the X-API-Key header or as a Bearer token.", nil)
			return
		}

		cred, decision, err := a.admit(ctx, presented)
		if errors.Is(err, service.ErrInvalidKey) {
			a.logger.WithFields(logrus.Fields{
				"key_prefix": displayPrefix(presented),
				"request_id": GetRequestID(ctx),
				"reason":     err.Error(),
			}).Info("api key refused")
			WriteError(w, http.StatusUnauthorized, CodeInvalidAPIKey, "Invalid or expired API key", nil)
			return
		}
		if err != nil {
			entry := a.logger.WithError(err).WithField("request_id", GetRequestID(ctx))
			if cred != nil {
				entry = entry.WithField("key_id", cred.Key.ID)
			}
			entry.Error("api key authentication failed")
			if decision.Limit > 0 {
				setRateLimitHeaders(w.Header(), decision)
			}
			WriteError(w, http.StatusInternalServerError, CodeAuthenticationError, "Authentication failed", nil)
			if cred != nil {
				msg := err.Error()
				a.record(r, cred.Key.ID, http.StatusInternalServerError, start, model.OutcomeError, &msg)
			}
			return
		}

		setRateLimitHeaders(w.Header(), decision)
		if !decision.Allowed {
			w.Header().Set("Retry-After", strconv.Itoa(decision.RetryAfter))
			WriteError(w, http.StatusTooManyRequests, CodeRateLimitExceeded,
				fmt.Sprintf("Rate limit of %d requests per hour exceeded", decision.Limit),
				map[string]any{
					"retry_after": decision.RetryAfter,
					"limit":       decision.Limit,
					"reset_at":    decision.ResetAt.UTC().Format(time.RFC3339),
				})
			msg := rateLimitExceededMessage
			a.record(r, cred.Key.ID, http.StatusTooManyRequests, start, model.OutcomeRejected, &msg)
			return
		}

		kc := &model.KeyContext{
			KeyID:       cred.Key.ID,
			KeyName:     cred.Key.Name,
			AccountID:   cred.Key.AccountID,
			AccountName: cred.AccountName,
			Permissions: cred.Key.Permissions,
			RateLimit:   cred.Key.RateLimit,
		}
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			rec := recover()
			status, outcome := ww.status, model.OutcomeCompleted
			var msg *string
			switch {
			case rec != nil:
				status, outcome = http.StatusInternalServerError, model.OutcomeError
				s := fmt.Sprint(rec)
				msg = &s
			case ctx.Err() != nil:
				outcome = model.OutcomeAborted
			}
			a.record(r, kc.KeyID, status, start, outcome, msg)
			if rec != nil {
				panic(rec)
			}
		}()

		next.ServeHTTP(ww, r.WithContext(WithKeyContext(ctx, kc)))
	})
}

// admit resolves the key, counts the request and touches the key when it is
// within quota. A panic in any of those steps is returned as an error.
func (a *Authenticator) admit(ctx context.Context, presented string) (cred *store.KeyCredential, d service.Decision, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic during authentication: %v", rec)
		}
	}()

	cred, err = a.keys.ResolveKey(ctx, presented)
	if err != nil {
		return nil, d, err
	}
	d, err = a.limiter.CheckAndIncrement(ctx, cred.Key.ID, cred.Key.RateLimit)
	if err != nil {
		return cred, d, err
	}
	if d.Allowed {
		if err = a.keys.TouchKey(ctx, cred.Key.ID); err != nil {
			return cred, d, err
		}
	}
	return cred, d, nil
}

func (a *Authenticator) record(r *http.Request, keyID int64, status int, start time.Time, outcome model.UsageOutcome, msg *string) {
	a.usage.Record(r.Context(), model.UsageLogEntry{
		APIKeyID:       keyID,
		Endpoint:       r.URL.Path,
		Method:         r.Method,
		StatusCode:     status,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		IPAddress:      clientIP(r),
		UserAgent:      r.UserAgent(),
		ErrorMessage:   msg,
		Outcome:        outcome,
	})
}

func setRateLimitHeaders(h http.Header, d service.Decision) {
	h.Set(HeaderRateLimitLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(d.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// displayPrefix is the part of a presented secret that may be logged. Strings
// that do not look like our keys are never echoed.
func displayPrefix(presented string) string {
	if strings.HasPrefix(presented, model.SecretTag) && len(presented) > service.PrefixLen {
		return presented[:service.PrefixLen]
	}
	return ""
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// WithKeyContext attaches an accepted key to ctx.
func WithKeyContext(ctx context.Context, kc *model.KeyContext) context.Context {
	return context.WithValue(ctx, KeyContextKey, kc)
}

// GetKeyContext returns the accepted key, or nil outside the gateway.
func GetKeyContext(ctx context.Context) *model.KeyContext {
	if kc, ok := ctx.Value(KeyContextKey).(*model.KeyContext); ok {
		return kc
	}
	return nil
}
