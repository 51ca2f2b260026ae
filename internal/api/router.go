package api

import (
	"fmt"
	"net/http"

	"github.com/klauspost/compress/gzhttp"
)

// NewRouter mounts the REST and WebSocket endpoints. The WebSocket route is
// left uncompressed so the connection can be hijacked.
func NewRouter(h *HTTPHandler, ws *WSHandler) (http.Handler, error) {
	gzip, err := GzipMiddleware()
	if err != nil {
		return nil, fmt.Errorf("gzip middleware: %w", err)
	}
	mux := http.NewServeMux()

	rest := func(f http.HandlerFunc) http.Handler { return gzip(f) }
	mux.Handle("GET /v1/days", rest(h.ListDays))
	mux.Handle("GET /v1/playback", rest(h.GetPlayback))
	mux.Handle("POST /v1/playback/select", rest(h.Select))
	mux.Handle("POST /v1/playback/play", rest(h.Play))
	mux.Handle("POST /v1/playback/toggle", rest(h.Toggle))
	mux.Handle("POST /v1/playback/pause", rest(h.Pause))
	mux.Handle("POST /v1/playback/resume", rest(h.Resume))
	mux.Handle("POST /v1/playback/reset", rest(h.Reset))
	if ws != nil {
		mux.HandleFunc("/v1/ws", ws.ServeWS)
	}
	mux.HandleFunc("GET /healthz", Healthz)

	return CORSMiddleware(mux), nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// GzipMiddleware compresses responses of at least 1 KiB for clients that
// accept gzip.
func GzipMiddleware() (func(http.Handler) http.HandlerFunc, error) {
	return gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.CompressionLevel(6),
	)
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
