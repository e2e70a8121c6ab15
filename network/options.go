package network

import (
	"crypto/tls"
	"crypto/x509"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/luca-patrignani/byzantine-bank/logging"
)

type settings struct {
	timeout   time.Duration
	tlsConfig *tls.Config
	gatherer  prometheus.Gatherer
	log       logging.Logger
}

// Option configures a Server or a Client.
type Option func(*settings)

func newSettings(opts []Option) settings {
	s := settings{timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logging.NewLogger()
	}
	return s
}

func (s *settings) secure() *tls.Config {
	if s.tlsConfig == nil {
		s.tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return s.tlsConfig
}

// WithTimeout bounds every client call and the server's read and write
// deadlines.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		s.timeout = timeout
	}
}

// WithCertificate presents cert: as the server certificate on a Server and
// as the client certificate on a Client.
func WithCertificate(cert tls.Certificate) Option {
	return func(s *settings) {
		s.secure().Certificates = append(s.secure().Certificates, cert)
	}
}

// WithLimitedCAs trusts only certPool, on both ends of the connection.
func WithLimitedCAs(certPool *x509.CertPool) Option {
	return func(s *settings) {
		cfg := s.secure()
		cfg.RootCAs = certPool
		cfg.ClientCAs = certPool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
}

// WithMetrics exposes gatherer at /metrics. Servers only.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *settings) {
		s.gatherer = gatherer
	}
}

func WithLogger(log logging.Logger) Option {
	return func(s *settings) {
		s.log = log
	}
}
