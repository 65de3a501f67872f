package transport

import "errors"

// Proxy errors.
// These errors are returned when the configured SOCKS5 proxy is unusable.
var (
	// ErrInvalidProxyAddress is returned when the proxy address format is invalid.
	// Expected format is "host:port".
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")

	// ErrProxyCannotConnect is returned when no TCP connection to the proxy
	// can be established.
	ErrProxyCannotConnect = errors.New("cannot connect to proxy")

	// ErrProxyNotSOCKS5 is returned when the proxy answers but does not
	// complete a SOCKS5 no-auth handshake.
	ErrProxyNotSOCKS5 = errors.New("proxy is not a SOCKS5 proxy")

	// ErrProxyTimeout is returned when the proxy check times out.
	ErrProxyTimeout = errors.New("timeout connecting to proxy")
)
