package httpserver

import (
	"net/http"
	"time"
)

// writeSlack is added on top of the correlation wait window when sizing
// WriteTimeout, covering upload parsing and response encoding around the
// wait itself.
const writeSlack = 15 * time.Second

// New builds the HTTP server. waitTimeout is the correlation wait window:
// a validation request holds its connection open for up to that long, so
// WriteTimeout must outlast it or the response is cut off mid-wait.
func New(addr string, handler http.Handler, waitTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      waitTimeout + writeSlack,
		IdleTimeout:       60 * time.Second,
	}
}
