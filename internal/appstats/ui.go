package appstats

import (
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/bdarnell/tornado-tracing/internal/infrastructure/logging"
)

var listingTemplate = template.Must(template.New("listing").Funcs(template.FuncMap{
	"millis": func(ms int64) string {
		return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04:05.000")
	},
}).Parse(`<!DOCTYPE html>
<html>
<head><title>Appstats</title></head>
<body>
<h1>Recent requests</h1>
{{if .}}<table>
<tr><th>Started</th><th>Request</th><th>Status</th><th>Duration</th><th>Calls</th></tr>
{{range .}}<tr>
<td><a href="details?time={{.Start}}">{{millis .Start}}</a></td>
<td>{{.Method}} {{.Path}}{{if .Query}}?{{.Query}}{{end}}</td>
<td>{{.Status}}</td>
<td>{{.Duration}} ms</td>
<td>{{.Calls}}{{if .Pending}} ({{.Pending}} pending){{end}}</td>
</tr>
{{end}}</table>{{else}}<p>No requests recorded.</p>{{end}}
</body>
</html>
`))

// UI serves stored recordings. Paths are relative to wherever the handler
// is mounted.
type UI struct {
	store  *Store
	logger *zap.Logger
}

// NewUI creates the UI handler.
func NewUI(store *Store, logger *zap.Logger) *UI {
	return &UI{store: store, logger: logging.OrNop(logger).Named("appstats.ui")}
}

func (u *UI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	switch strings.TrimSuffix(r.URL.Path, "/") {
	case "":
		u.serveListing(w, r)
	case "/stats":
		u.serveStats(w, r)
	case "/details":
		u.serveDetails(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (u *UI) serveListing(w http.ResponseWriter, r *http.Request) {
	summaries, err := u.store.Recent(r.Context())
	if err != nil {
		u.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := listingTemplate.Execute(w, summaries); err != nil {
		u.logger.Warn("render listing", zap.Error(err))
	}
}

func (u *UI) serveStats(w http.ResponseWriter, r *http.Request) {
	summaries, err := u.store.Recent(r.Context())
	if err != nil {
		u.fail(w, err)
		return
	}
	u.writeJSON(w, http.StatusOK, summaries)
}

func (u *UI) serveDetails(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.ParseInt(r.URL.Query().Get("time"), 10, 64)
	if err != nil {
		u.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "time must be milliseconds since the epoch"})
		return
	}

	record, err := u.store.Full(r.Context(), ms)
	if errors.Is(err, ErrNotFound) {
		u.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		u.fail(w, err)
		return
	}
	u.writeJSON(w, http.StatusOK, record)
}

func (u *UI) fail(w http.ResponseWriter, err error) {
	u.logger.Error("load recordings", zap.Error(err))
	u.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "recording store unavailable"})
}

func (u *UI) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		u.logger.Error("encode response", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}
