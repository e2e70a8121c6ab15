package network

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/logging"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// MaxRequestBytes caps the body of a protocol request.
const MaxRequestBytes = 1 << 20

// Service is what a Server exposes: the protocol plus the identity clients
// pin.
type Service interface {
	api.Replica
	Name() string
	PublicKey() signature.PublicKey
}

// Identity is the body of GET /v1/identity.
type Identity struct {
	Name      string `json:"name"`
	PublicKey []byte `json:"public_key"`
}

// Server serves one replica over HTTP.
type Server struct {
	service  Service
	settings settings
	server   *http.Server
	log      logging.Logger
}

// NewServer builds the router for service. Nothing listens until Start.
func NewServer(service Service, opts ...Option) *Server {
	s := &Server{service: service, settings: newSettings(opts)}
	s.log = s.settings.log.With("replica", service.Name())

	r := mux.NewRouter()
	r.Use(s.logRequests)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/accounts", handle(s, s.service.OpenAccount)).Methods(http.MethodPost)
	v1.HandleFunc("/nonce", handle(s, s.service.NonceNegotiation)).Methods(http.MethodPost)
	v1.HandleFunc("/send", handle(s, s.service.SendAmount)).Methods(http.MethodPost)
	v1.HandleFunc("/receive", handle(s, s.service.ReceiveAmount)).Methods(http.MethodPost)
	v1.HandleFunc("/accounts/{key}", s.checkAccount).Methods(http.MethodGet)
	v1.HandleFunc("/accounts/{key}/audit", s.audit).Methods(http.MethodGet)
	v1.HandleFunc("/identity", s.identity).Methods(http.MethodGet)
	if s.settings.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.settings.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	s.server = &http.Server{
		Handler:      r,
		ReadTimeout:  s.settings.timeout,
		WriteTimeout: s.settings.timeout,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.server.Handler }

// Start serves on l in the background, over TLS when a certificate was
// configured. It returns a channel that yields the terminal serve error.
func (s *Server) Start(l net.Listener) <-chan error {
	if cfg := s.settings.tlsConfig; cfg != nil {
		l = tls.NewListener(l, cfg)
	}
	s.log.Infof("serving on %s", l.Addr())
	done := make(chan error, 1)
	go func() {
		err := s.server.Serve(l)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	return done
}

// Close stops accepting requests and waits for the running ones.
func (s *Server) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.settings.timeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.WithFields(logging.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"remote": r.RemoteAddr,
		}).Debugf("handled in %s", time.Since(start))
	})
}

// handle adapts one protocol method: JSON in, JSON out. A method error is a
// 500 so that no caller mistakes it for an answer.
func handle[Req, Resp any](s *Server, call func(context.Context, Req) (Resp, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Req
		body := http.MaxBytesReader(w, r.Body, MaxRequestBytes)
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			code := http.StatusBadRequest
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				code = http.StatusRequestEntityTooLarge
			}
			http.Error(w, string(api.StatusInvalidMessageFormat)+": "+err.Error(), code)
			return
		}
		resp, err := call(r.Context(), req)
		if err != nil {
			s.log.Errorf("%s: %v", r.URL.Path, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, resp)
	}
}

// pathKey decodes {key}. An undecodable key is passed through as raw bytes
// so that the replica reports it with a signed INVALID_KEY_FORMAT.
func pathKey(r *http.Request) []byte {
	raw := mux.Vars(r)["key"]
	if key, err := base64.RawURLEncoding.DecodeString(raw); err == nil {
		return key
	}
	return []byte(raw)
}

func (s *Server) checkAccount(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.CheckAccount(r.Context(), api.CheckAccountRequest{PublicKey: pathKey(r)})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) audit(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.Audit(r.Context(), api.AuditRequest{PublicKey: pathKey(r)})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, resp)
}

func (s *Server) identity(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, Identity{Name: s.service.Name(), PublicKey: s.service.PublicKey().Bytes()})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("write response: %v", err)
	}
}
