// Package tlsutil builds the client tls.Config for the MQTT broker connection.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/c360/mqtt2influxdb/config"
	"github.com/c360/mqtt2influxdb/errors"
)

// Client returns a TLS 1.2+ client config trusting the system pool plus
// cfg.CAFile, presenting cfg.CertFile/KeyFile when both are set. Every
// failure is fatal: a broken certificate setup does not heal on retry.
func Client(cfg config.TLSConfig) (*tls.Config, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Client", "read CA file "+cfg.CAFile)
		}
		if !roots.AppendCertsFromPEM(pem) {
			return nil, errors.WrapFatal(fmt.Errorf("%w: no certificate in %s", errors.ErrInvalidConfig, cfg.CAFile),
				"tlsutil", "Client", "parse CA file")
		}
	}

	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		RootCAs:            roots,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test brokers
	}

	if (cfg.CertFile == "") != (cfg.KeyFile == "") {
		return nil, errors.WrapFatal(fmt.Errorf("%w: client certificate needs both cert and key", errors.ErrInvalidConfig),
			"tlsutil", "Client", "load client certificate")
	}
	if cfg.CertFile != "" {
		pair, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "Client", "load client certificate")
		}
		tc.Certificates = []tls.Certificate{pair}
	}
	return tc, nil
}
