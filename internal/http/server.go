package httpserver

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

type Config struct {
	Addr    string
	TLSAddr string
}

type Server struct {
	servers []*http.Server
	log     *logrus.Entry
}

// New prepares the plain listener and, when TLSAddr is set, an HTTPS listener
// with a freshly generated self-signed certificate.
func New(logger *logrus.Logger, cfg Config, handler http.Handler) (*Server, error) {
	s := &Server{log: logger.WithField("component", "http_server")}

	s.servers = append(s.servers, newHTTPServer(cfg.Addr, handler))

	if cfg.TLSAddr != "" {
		cert, err := generateSelfSignedCert()
		if err != nil {
			return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
		}
		srv := newHTTPServer(cfg.TLSAddr, handler)
		srv.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
		s.servers = append(s.servers, srv)
	}
	return s, nil
}

func newHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       2 * time.Minute,
	}
}

// Run serves until ctx is canceled or a listener fails, then shuts every
// listener down.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, len(s.servers))

	for _, srv := range s.servers {
		go func(srv *http.Server) {
			var err error
			if srv.TLSConfig != nil {
				s.log.WithField("addr", srv.Addr).Info("Starting HTTPS server")
				err = srv.ListenAndServeTLS("", "")
			} else {
				s.log.WithField("addr", srv.Addr).Info("Starting HTTP server")
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listener %s: %w", srv.Addr, err)
				return
			}
			errCh <- nil
		}(srv)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info("Shutting down HTTP servers")
	for _, srv := range s.servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).WithField("addr", srv.Addr).Error("Server shutdown error")
		}
	}
	return runErr
}

func generateSelfSignedCert() (tls.Certificate, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return tls.Certificate{}, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return tls.Certificate{}, err
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Log Relay"},
		},
		NotBefore: time.Now().Add(-time.Minute),
		NotAfter:  time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:  x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
		},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
	}

	derBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		return tls.Certificate{}, err
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derBytes})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	return tls.X509KeyPair(certPEM, keyPEM)
}
