package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// SecureHeaders sets the browser hardening headers. API responses carry
// captain identifiers and mobile numbers, so they are never cached.
type SecureHeaders struct {
	HSTSMaxAge            int
	HSTSIncludeSubdomains bool
	ContentSecurityPolicy string
	PermissionsPolicy     string
	XFrameOptions         string
	ReferrerPolicy        string
	NoStore               bool

	// DevMode drops the CSP and permissions defaults so local tooling can
	// embed the API.
	DevMode bool
}

// DefaultSecureHeaders returns the production settings
func DefaultSecureHeaders() *SecureHeaders {
	return &SecureHeaders{
		HSTSMaxAge:            63072000,
		HSTSIncludeSubdomains: true,
		XFrameOptions:         "DENY",
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		NoStore:               true,
	}
}

// reportCSP admits the inline styles and data: images of exported HTML
// reports.
var reportCSP = strings.Join([]string{
	"default-src 'self'",
	"style-src 'self' 'unsafe-inline'",
	"img-src 'self' data: blob:",
	"frame-ancestors 'none'",
	"base-uri 'self'",
	"form-action 'self'",
}, "; ")

const lockedPermissions = "camera=(), geolocation=(), microphone=(), payment=(), usb=()"

// headers resolves the static header set once
func (sh *SecureHeaders) headers() http.Header {
	h := http.Header{}
	h.Set("X-Content-Type-Options", "nosniff")
	if sh.XFrameOptions != "" {
		h.Set("X-Frame-Options", sh.XFrameOptions)
	}
	if sh.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", sh.ReferrerPolicy)
	}
	if sh.NoStore {
		h.Set("Cache-Control", "no-store")
	}

	csp, perms := sh.ContentSecurityPolicy, sh.PermissionsPolicy
	if !sh.DevMode {
		if csp == "" {
			csp = reportCSP
		}
		if perms == "" {
			perms = lockedPermissions
		}
	}
	if csp != "" {
		h.Set("Content-Security-Policy", csp)
	}
	if perms != "" {
		h.Set("Permissions-Policy", perms)
	}
	return h
}

// Handler returns the middleware. HSTS is only sent over TLS.
func (sh *SecureHeaders) Handler(next http.Handler) http.Handler {
	static := sh.headers()
	hsts := ""
	if sh.HSTSMaxAge > 0 {
		hsts = "max-age=" + strconv.Itoa(sh.HSTSMaxAge)
		if sh.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		for k, v := range static {
			h[k] = append([]string(nil), v...)
		}
		if hsts != "" && r.TLS != nil {
			h.Set("Strict-Transport-Security", hsts)
		}
		next.ServeHTTP(w, r)
	})
}
