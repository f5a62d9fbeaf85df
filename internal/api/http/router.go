// Package httpapi routes the HTTP surface of the service: health, metrics,
// session and account introspection, clip rendering and the call endpoint.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/clip"
	"ai-media-hub-service/internal/service/session"
	"ai-media-hub-service/internal/stream"
)

// PoolStats is an account pool as seen by the introspection endpoint.
type PoolStats interface {
	Name() string
	Stats() []agent.Stats
}

// Deps holds what the router serves.
type Deps struct {
	Registry *session.Registry
	Pools    []PoolStats
	Clips    session.TaskFactory
	// Calls serves the call websocket; nil disables it.
	Calls http.Handler
	// Ready reports readiness; nil is always ready.
	Ready func() bool
}

// SessionView is one registered conversation.
type SessionView struct {
	SessionID string `json:"sessionId"`
	DialogID  string `json:"dialogId"`
	State     string `json:"state"`
}

// PoolView is one account pool.
type PoolView struct {
	Name     string        `json:"name"`
	Accounts []agent.Stats `json:"accounts"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if d.Ready != nil && !d.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sessions", listSessions(d.Registry))
		r.Get("/agents", listPools(d.Pools))
		if d.Clips != nil {
			r.Get("/clips", renderClip(d.Clips))
		}
		if d.Calls != nil {
			r.Handle("/calls", d.Calls)
		}
	})

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger := logging.WithComponent("http")
		logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Str("requestId", middleware.GetReqID(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func listSessions(reg *session.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		views := []SessionView{}
		if reg != nil {
			reg.Range(func(c *session.Conversation) bool {
				views = append(views, SessionView{
					SessionID: c.ID(),
					DialogID:  c.DialogID(),
					State:     c.State().String(),
				})
				return true
			})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

func listPools(pools []PoolStats) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		views := make([]PoolView, 0, len(pools))
		for _, p := range pools {
			views = append(views, PoolView{Name: p.Name(), Accounts: p.Stats()})
		}
		writeJSON(w, http.StatusOK, views)
	}
}

// renderClip streams the audio of the clip named by the path query parameter
// as it is produced. A single byte range is served from the clip buffer:
// while the clip is still being produced the response advertises
// stream.UnknownLength as the total so players keep requesting ranges.
func renderClip(factory session.TaskFactory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Query().Get("path")
		if path == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
			return
		}
		task, err := factory.FromPath(path)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		var (
			first, last int64 = 0, -1
			ranged      bool
		)
		if h := r.Header.Get("Range"); h != "" {
			if first, last, ranged = parseRange(h); !ranged {
				w.Header().Set("Content-Range", "bytes */*")
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
		}

		buf := stream.NewBuffer(stream.Identity{
			Path:      path,
			ContentID: string(task.Kind()),
			PlayIdx:   middleware.GetReqID(r.Context()),
		})
		go func() {
			if err := clip.Pipe(r.Context(), task, buf); err != nil {
				logger := logging.WithComponent("http")
				logger.Warn().Err(err).Str("path", path).Msg("Clip render failed")
			}
		}()

		w.Header().Set("Content-Type", clipContentType(task.Kind()))
		w.Header().Set("Accept-Ranges", "bytes")

		remaining := int64(-1)
		if ranged {
			if buf.NeedMoreData(first) {
				if err := buf.Wait(r.Context(), first); err != nil {
					return
				}
			}
			total := buf.Length()
			if first >= total {
				w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
				w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
				return
			}
			if _, err := buf.SeekTo(first); err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
				return
			}
			if last < 0 || last >= total {
				last = total - 1
			}
			remaining = last - first + 1
			w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, total))
			if !buf.Streaming() {
				w.Header().Set("Content-Length", strconv.FormatInt(remaining, 10))
			}
			w.WriteHeader(http.StatusPartialContent)
		} else {
			w.WriteHeader(http.StatusOK)
		}

		flusher, _ := w.(http.Flusher)
		chunk := make([]byte, 3200)
		for remaining != 0 {
			p := chunk
			if remaining > 0 && remaining < int64(len(p)) {
				p = p[:remaining]
			}
			n, err := buf.Read(p)
			if n > 0 {
				if _, werr := w.Write(p[:n]); werr != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
				if remaining > 0 {
					remaining -= int64(n)
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
		}
	}
}

// clipContentType labels the rendered stream. Composites start with a WAV
// header; every other clip is raw little-endian PCM.
func clipContentType(kind clip.Kind) string {
	if kind == clip.KindComposite {
		return "audio/wav"
	}
	return "audio/pcm; rate=16000; channels=1"
}

// parseRange parses a single "bytes=first-[last]" range. last is -1 when
// open. Suffix and multi ranges are not supported.
func parseRange(h string) (first, last int64, ok bool) {
	spec, found := strings.CutPrefix(h, "bytes=")
	if !found || strings.Contains(spec, ",") {
		return 0, 0, false
	}
	from, to, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found || from == "" {
		return 0, 0, false
	}
	first, err := strconv.ParseInt(from, 10, 64)
	if err != nil || first < 0 {
		return 0, 0, false
	}
	if to == "" {
		return first, -1, true
	}
	last, err = strconv.ParseInt(to, 10, 64)
	if err != nil || last < first {
		return 0, 0, false
	}
	return first, last, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
