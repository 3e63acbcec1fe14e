package restapi

import (
	"net/http"
	"time"

	"buspulse.openmobility.org/internal/logging"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

// logRequests emits one structured log line per request.
func (api *RestAPI) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logging.LogHTTPRequest(api.Logger, r.Method, r.URL.Path, rec.status,
			float64(time.Since(start).Microseconds())/1000.0)
	})
}
