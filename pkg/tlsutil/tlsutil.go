// Package tlsutil builds crypto/tls configurations from plugin parameters and
// host configuration.
//
// Client settings are embedded in the parameters of network sinks under a "tls"
// key; server settings protect the metrics endpoint of the host.
package tlsutil

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/pbosetti/mads-plugin/errors"
)

// ClientConfig holds TLS settings for outgoing connections.
// The system CA bundle is always trusted; CAFiles are additional trusted CAs.
type ClientConfig struct {
	CAFiles            []string `mapstructure:"ca_files" yaml:"ca_files" json:"ca_files,omitempty"`
	InsecureSkipVerify bool     `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify" json:"insecure_skip_verify,omitempty"`
	MinVersion         string   `mapstructure:"min_version" yaml:"min_version" json:"min_version,omitempty"`
	// CertFile and KeyFile enable mutual TLS when both are set
	CertFile string `mapstructure:"cert_file" yaml:"cert_file" json:"cert_file,omitempty"`
	KeyFile  string `mapstructure:"key_file" yaml:"key_file" json:"key_file,omitempty"`
}

// Empty reports whether no setting differs from the Go defaults
func (c ClientConfig) Empty() bool {
	return len(c.CAFiles) == 0 && !c.InsecureSkipVerify && c.MinVersion == "" &&
		c.CertFile == "" && c.KeyFile == ""
}

// ServerConfig holds TLS settings for a listening endpoint
type ServerConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	CertFile   string `mapstructure:"cert_file" yaml:"cert_file" json:"cert_file,omitempty"`
	KeyFile    string `mapstructure:"key_file" yaml:"key_file" json:"key_file,omitempty"`
	MinVersion string `mapstructure:"min_version" yaml:"min_version" json:"min_version,omitempty"`

	// ClientCAFiles enables client certificate validation
	ClientCAFiles     []string `mapstructure:"client_ca_files" yaml:"client_ca_files" json:"client_ca_files,omitempty"`
	RequireClientCert bool     `mapstructure:"require_client_cert" yaml:"require_client_cert" json:"require_client_cert,omitempty"`
	AllowedClientCNs  []string `mapstructure:"allowed_client_cns" yaml:"allowed_client_cns" json:"allowed_client_cns,omitempty"`
}

// LoadServerTLSConfig creates a tls.Config for a server. It returns nil when TLS is disabled.
func LoadServerTLSConfig(cfg ServerConfig) (*tls.Config, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, errors.WrapFatal(err, "tlsutil", "LoadServerTLSConfig", "load certificate")
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   parseTLSVersion(cfg.MinVersion),
	}
	if len(cfg.ClientCAFiles) == 0 {
		return tlsConfig, nil
	}

	clientCAs := x509.NewCertPool()
	if err := appendCAs(clientCAs, cfg.ClientCAFiles, "LoadServerTLSConfig"); err != nil {
		return nil, err
	}
	tlsConfig.ClientCAs = clientCAs
	if cfg.RequireClientCert {
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	} else {
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	}
	if len(cfg.AllowedClientCNs) > 0 {
		allowed := cfg.AllowedClientCNs
		tlsConfig.VerifyPeerCertificate = func(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
			return verifyAllowedClientCN(verifiedChains, allowed)
		}
	}
	return tlsConfig, nil
}

// LoadClientTLSConfig creates a tls.Config for a client
func LoadClientTLSConfig(cfg ClientConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: parseTLSVersion(cfg.MinVersion),
	}

	rootCAs, err := x509.SystemCertPool()
	if err != nil {
		rootCAs = x509.NewCertPool()
	}
	if err := appendCAs(rootCAs, cfg.CAFiles, "LoadClientTLSConfig"); err != nil {
		return nil, err
	}
	tlsConfig.RootCAs = rootCAs

	// Setting this is intentional via config
	if cfg.InsecureSkipVerify {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CertFile != "" || cfg.KeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, errors.WrapFatal(err, "tlsutil", "LoadClientTLSConfig", "load client certificate")
		}
		tlsConfig.Certificates = []tls.Certificate{clientCert}
	}
	return tlsConfig, nil
}

// ClientOrNil returns nil for an empty configuration, so callers keep the
// transport defaults, and LoadClientTLSConfig otherwise
func ClientOrNil(cfg ClientConfig) (*tls.Config, error) {
	if cfg.Empty() {
		return nil, nil
	}
	return LoadClientTLSConfig(cfg)
}

func appendCAs(pool *x509.CertPool, files []string, method string) error {
	for _, caFile := range files {
		caPEM, err := os.ReadFile(caFile)
		if err != nil {
			return errors.WrapFatal(err, "tlsutil", method, fmt.Sprintf("read CA file %s", caFile))
		}
		if !pool.AppendCertsFromPEM(caPEM) {
			return errors.WrapFatal(fmt.Errorf("invalid PEM data"), "tlsutil", method,
				fmt.Sprintf("parse CA certificate from %s", caFile))
		}
	}
	return nil
}

// verifyAllowedClientCN checks the client certificate CN against the allow list
func verifyAllowedClientCN(chains [][]*x509.Certificate, allowedCNs []string) error {
	if len(chains) == 0 {
		return fmt.Errorf("no verified certificate chains")
	}

	leafCert := chains[0][0]
	for _, allowedCN := range allowedCNs {
		if leafCert.Subject.CommonName == allowedCN {
			return nil
		}
	}
	return fmt.Errorf("client certificate CN '%s' not in allowed list", leafCert.Subject.CommonName)
}

// parseTLSVersion converts "1.2" or "1.3" to a crypto/tls constant.
// Anything else means TLS 1.2.
func parseTLSVersion(version string) uint16 {
	switch version {
	case "1.3":
		return tls.VersionTLS13
	default:
		return tls.VersionTLS12
	}
}
