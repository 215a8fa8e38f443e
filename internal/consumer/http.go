package consumer

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaiso/Roomly/internal/mq"
	"github.com/shaiso/Roomly/internal/telemetry"
)

// NewMux создаёт HTTP handler: /healthz + /metrics.
//
// /healthz отвечает 200, пока соединение с брокером установлено,
// и 503 во время переподключения или после закрытия.
func NewMux(conn *mq.Connection, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !conn.IsConnected() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(conn.State().String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	return telemetry.Chain(
		telemetry.RequestLogging(logger),
		telemetry.Recovery(logger),
	)(mux)
}
