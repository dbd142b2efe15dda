package gateway

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const defaultMaxBodyBytes int64 = 1 << 20

// BodyVerifier authenticates a notification body before it reaches the
// gateway.
type BodyVerifier interface {
	Verify(headers http.Header, body []byte) error
}

type httpOptions struct {
	verifier BodyVerifier
}

type HTTPOption func(*httpOptions)

// WithBodyVerifier rejects POST bodies the verifier refuses with 403.
func WithBodyVerifier(verifier BodyVerifier) HTTPOption {
	return func(o *httpOptions) {
		o.verifier = verifier
	}
}

// NewHTTPHandler mounts the webhook GET and POST routes on path.
func NewHTTPHandler(gw *Gateway, path string, maxBodyBytes int64, opts ...HTTPOption) http.Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxBodyBytes
	}
	cfg := httpOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get(path, func(w http.ResponseWriter, req *http.Request) {
		query := req.URL.Query()
		resp := gw.HandleChallenge(req.Context(), ChallengeQuery{
			Mode:        query.Get("hub.mode"),
			VerifyToken: query.Get("hub.verify_token"),
			Challenge:   query.Get("hub.challenge"),
		})
		writeResponse(w, resp)
	})

	r.Post(path, func(w http.ResponseWriter, req *http.Request) {
		body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
		if err != nil {
			writeResponse(w, gw.rejectBody(req.Context(), err))
			return
		}
		if cfg.verifier != nil {
			if err := cfg.verifier.Verify(req.Header, body); err != nil {
				writeResponse(w, gw.rejectSignature(req.Context(), err))
				return
			}
		}
		writeResponse(w, gw.HandleNotification(req.Context(), body))
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func writeResponse(w http.ResponseWriter, resp Response) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		_, _ = io.WriteString(w, resp.Body)
	}
}
