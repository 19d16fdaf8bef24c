package enaclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/carbocation/herring"
	"github.com/carbocation/herring/enaquery"
	"golang.org/x/net/http2"
)

// DefaultBaseURL is the ENA portal API root.
const DefaultBaseURL = "https://www.ebi.ac.uk/ena/portal/api"

// Config describes how to reach the portal. It is built once by the caller
// and never read from the environment here.
type Config struct {
	BaseURL  string
	Platform string

	// Timeout applies to each individual request, not to a whole Execute.
	Timeout time.Duration

	// InsecureTLS disables certificate validation. Debugging only.
	InsecureTLS bool

	// CABundle is a PEM file whose certificates are trusted in addition to
	// the system roots.
	CABundle string

	UserAgent string
	Retry     RetryPolicy
}

// DefaultConfig has sane values for every field.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Platform:  enaquery.DefaultPlatform,
		Timeout:   30 * time.Second,
		UserAgent: "herring",
		Retry:     DefaultRetryPolicy(),
	}
}

// Validate reports configuration problems as herring.ErrInvalidArgument.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: base URL %q is not an absolute URL", herring.ErrInvalidArgument, c.BaseURL)
	}
	if c.Platform == "" {
		return fmt.Errorf("%w: instrument platform is empty", herring.ErrInvalidArgument)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive, got %s", herring.ErrInvalidArgument, c.Timeout)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", herring.ErrInvalidArgument, c.Retry.MaxAttempts)
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("%w: retry base delay must not be negative, got %s", herring.ErrInvalidArgument, c.Retry.BaseDelay)
	}
	if c.Retry.MaxDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		return fmt.Errorf("%w: retry max delay must be positive and at least the base delay, got %s", herring.ErrInvalidArgument, c.Retry.MaxDelay)
	}

	return nil
}

// NewHTTPClient builds the HTTP client for cfg: optional extra root
// certificates, optional disabled verification, HTTP/2 when the server offers
// it. The client has no overall timeout; Execute bounds each request.
func NewHTTPClient(cfg Config) (*http.Client, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.InsecureTLS {
		tlsConfig.InsecureSkipVerify = true
	}

	if cfg.CABundle != "" {
		pool, err := loadCABundle(cfg.CABundle)
		if err != nil {
			return nil, err
		}
		tlsConfig.RootCAs = pool
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configuring HTTP/2: %w", err)
	}

	return &http.Client{Transport: transport}, nil
}

func loadCABundle(path string) (*x509.CertPool, error) {
	path, err := herring.ExpandHome(path)
	if err != nil {
		return nil, fmt.Errorf("%w: CA bundle: %v", herring.ErrInvalidArgument, err)
	}

	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading CA bundle: %v", herring.ErrInvalidArgument, err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}

	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("%w: no PEM certificates found in %s", herring.ErrInvalidArgument, path)
	}

	return pool, nil
}
