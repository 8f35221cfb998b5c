// Package httpapi serves the engine's optional observability surface:
// /health, /metrics, and /ws, registered directly via http.ServeMux.
package httpapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/hydrobb/pumpsched/internal/progress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NewMux builds the handler tree served on --http-addr.
func NewMux(reg *prometheus.Registry, hub *progress.Hub) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if hub != nil {
		mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			hub.Register(conn)
		})
	}
	return mux
}
