package appstats

import (
	"net/http"
)

// Environ is the request metadata a recording is keyed by.
type Environ struct {
	Method     string
	Path       string
	Query      string
	Host       string
	Scheme     string
	RemoteAddr string
	Header     http.Header
}

// NewEnviron captures the parts of r a recording needs. It copies the
// headers, so the result stays valid after the request completes.
func NewEnviron(r *http.Request) Environ {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}

	return Environ{
		Method:     r.Method,
		Path:       r.URL.Path,
		Query:      r.URL.RawQuery,
		Host:       r.Host,
		Scheme:     scheme,
		RemoteAddr: r.RemoteAddr,
		Header:     r.Header.Clone(),
	}
}

// URL returns the request URL as seen by the client.
func (e Environ) URL() string {
	u := e.Scheme + "://" + e.Host + e.Path
	if e.Query != "" {
		u += "?" + e.Query
	}
	return u
}
