package relayengine

import (
	"crypto/tls"
	"crypto/x509"

	"software.sslmate.com/src/go-pkcs12"

	"github.com/hoppscotch/agent/internal/logger"
	"github.com/hoppscotch/agent/internal/relayerr"
)

// buildTLSConfig implements the security phase of spec.md §4.4: client
// certificate (PEM or PKCS#12), CA trust bundles (each parsed independently
// so one malformed bundle doesn't sink the others), and the
// validate_certificates/verify_host toggles.
func buildTLSConfig(sec SecurityConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		InsecureSkipVerify: !sec.ValidateCertificates,
	}

	if !sec.VerifyHost && sec.ValidateCertificates {
		// Trust the chain but skip hostname matching: verify everything
		// ourselves except ServerName, which crypto/tls otherwise enforces.
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = verifyChainIgnoringHost(cfg)
	}

	if len(sec.CACertificates) > 0 {
		pool := x509.NewCertPool()
		for _, pem := range sec.CACertificates {
			// A bundle that fails to parse is skipped, not fatal — one bad
			// CA entry shouldn't block every other trusted root.
			if !pool.AppendCertsFromPEM([]byte(pem)) {
				logger.Warn("skipping malformed CA bundle")
			}
		}
		cfg.RootCAs = pool
	}

	if sec.ClientCert != nil {
		cert, err := loadClientCert(sec.ClientCert)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func loadClientCert(def *ClientCertDef) (tls.Certificate, error) {
	switch def.Kind {
	case "pem":
		cert, err := tls.X509KeyPair(def.Cert, def.Key)
		if err != nil {
			return tls.Certificate{}, relayerr.Wrap(relayerr.KindCertificate, "parsing PEM client certificate", err)
		}
		return cert, nil

	case "pkcs12":
		key, leaf, _, err := pkcs12.DecodeChain(def.Data, def.Password)
		if err != nil {
			return tls.Certificate{}, relayerr.Wrap(relayerr.KindCertificate, "parsing PKCS#12 client certificate", err)
		}
		return tls.Certificate{
			Certificate: [][]byte{leaf.Raw},
			PrivateKey:  key,
			Leaf:        leaf,
		}, nil

	default:
		return tls.Certificate{}, relayerr.UnsupportedFeature("client_cert."+def.Kind, "unknown client certificate kind", false)
	}
}

// verifyChainIgnoringHost validates the certificate chain against cfg's
// trust roots without requiring the leaf's SAN to match the dialed
// hostname — used when verify_host is false but validate_certificates is
// true. RootCAs is read lazily at call time since buildTLSConfig may set
// it after this closure is installed.
func verifyChainIgnoringHost(cfg *tls.Config) func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return relayerr.New(relayerr.KindCertificate, "no peer certificates presented")
		}
		certs := make([]*x509.Certificate, len(rawCerts))
		for i, raw := range rawCerts {
			cert, err := x509.ParseCertificate(raw)
			if err != nil {
				return relayerr.Wrap(relayerr.KindCertificate, "parsing peer certificate", err)
			}
			certs[i] = cert
		}
		opts := x509.VerifyOptions{Roots: cfg.RootCAs, Intermediates: x509.NewCertPool()}
		for _, cert := range certs[1:] {
			opts.Intermediates.AddCert(cert)
		}
		if _, err := certs[0].Verify(opts); err != nil {
			return relayerr.Wrap(relayerr.KindCertificate, "verifying peer certificate chain", err)
		}
		return nil
	}
}
