package transport

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/KevoDB/chunksort/pkg/common/errs"
)

// TLSConfig names the PEM files for a TLS listener.
type TLSConfig struct {
	CertFile string
	KeyFile  string
	// CAFile, when set, requires clients to present a certificate it signed.
	CAFile string
}

// Enabled reports whether a server certificate is configured.
func (c TLSConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != ""
}

// LoadServerTLSConfig builds the listener's tls.Config. A half-configured
// pair is a config error; unreadable files are IO errors.
func LoadServerTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, errs.Config(errs.PhaseConfig, "both certificate and key files must be provided")
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errs.IO(errs.PhaseConfig, cfg.CertFile, err)
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if cfg.CAFile == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, errs.IO(errs.PhaseConfig, cfg.CAFile, err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errs.Config(errs.PhaseConfig, "no certificates found in %s", cfg.CAFile)
	}
	tlsConfig.ClientCAs = pool
	tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	return tlsConfig, nil
}
