package middleware

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
)

// HTTPRecorder receives per-request metrics
type HTTPRecorder interface {
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
}

// Instrument records duration and status of a route. route is the router
// pattern, not the concrete path, to keep label cardinality bounded.
func Instrument(rec HTTPRecorder, route string, next httprouter.Handle) httprouter.Handle {
	if rec == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w}
		next(sr, r, ps)
		rec.RecordHTTPRequest(r.Method, route, sr.Status(), time.Since(start))
	}
}
