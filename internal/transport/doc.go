// Package transport builds the HTTP clients sitecrawl fetches pages with.
//
// Connections go direct by default. With a SOCKS5 proxy address the client
// dials through golang.org/x/net/proxy, and CheckProxy can verify the proxy
// with a SOCKS5 handshake before a crawl starts.
//
// Per-site cookies and headers from the configuration file are injected by
// a RoundTripper, limited to the crawled host so that redirects to other
// hosts never carry them.
package transport
