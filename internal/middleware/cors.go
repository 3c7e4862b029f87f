package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/orderflow/gateway/internal/config"
)

// CORSConfig describes which browser origins may call the gateway.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// corsPolicy is CORSConfig with the header values joined once.
type corsPolicy struct {
	anyOrigin     bool
	origins       map[string]struct{}
	suffixes      []string
	allowMethods  string
	allowHeaders  string
	exposeHeaders string
	maxAge        string
	credentials   bool
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:       make(map[string]struct{}, len(cfg.AllowOrigins)),
		allowMethods:  strings.Join(cfg.AllowMethods, ", "),
		allowHeaders:  strings.Join(cfg.AllowHeaders, ", "),
		exposeHeaders: strings.Join(cfg.ExposeHeaders, ", "),
		credentials:   cfg.AllowCredentials,
	}
	if secs := int64(cfg.MaxAge / time.Second); secs > 0 {
		p.maxAge = strconv.FormatInt(secs, 10)
	}

	for _, origin := range cfg.AllowOrigins {
		switch {
		case origin == "*":
			p.anyOrigin = true
		case strings.HasPrefix(origin, "*."):
			p.suffixes = append(p.suffixes, origin[1:])
		default:
			p.origins[strings.ToLower(origin)] = struct{}{}
		}
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.anyOrigin {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := p.origins[origin]; ok {
		return true
	}

	host := origin
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	for _, suffix := range p.suffixes {
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// isPreflight reports whether r is a CORS preflight rather than a plain
// OPTIONS call meant for the upstream.
func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

// CORS answers preflight requests itself so they never reach auth,
// admission or the upstream, and decorates every other response
// (rate limit rejections included) with the allow-origin headers.
// Origins are echoed back, never "*".
func CORS(cfg CORSConfig) func(http.Handler) http.Handler {
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			allowed := policy.allows(origin)

			h := w.Header()
			if origin != "" {
				h.Add("Vary", "Origin")
			}
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				if policy.credentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
			}

			if isPreflight(r) {
				h.Add("Vary", "Access-Control-Request-Method")
				h.Add("Vary", "Access-Control-Request-Headers")
				if allowed {
					if policy.allowMethods != "" {
						h.Set("Access-Control-Allow-Methods", policy.allowMethods)
					}
					if policy.allowHeaders != "" {
						h.Set("Access-Control-Allow-Headers", policy.allowHeaders)
					}
					if policy.maxAge != "" {
						h.Set("Access-Control-Max-Age", policy.maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if allowed && policy.exposeHeaders != "" {
				h.Set("Access-Control-Expose-Headers", policy.exposeHeaders)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CORSFromConfig builds the CORS stage from the cors section of the
// gateway configuration.
func CORSFromConfig(cfg config.CORSConfig) func(http.Handler) http.Handler {
	return CORS(CORSConfig{
		AllowOrigins:     cfg.AllowOrigins,
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge.Duration(),
	})
}
