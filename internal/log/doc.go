// Package log provides secure logging built on top of the standard slog
// package.
//
// The SecureHandler sanitizes log output before it reaches the wrapped
// handler:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (bearer tokens, JWTs, keys)
//   - Credentials embedded in crawled URLs: userinfo and query parameters
//     such as token, key or sig, also inside error messages
//
// Even in verbose mode, sensitive values are masked so that crawl logs can
// be shared without leaking the cookies configured for a site.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Warn("fetch failed",
//	    "url", "https://example.com/dl?token=abc", // token value is masked
//	    "cookie", "session=abc123",                // masked
//	)
package log
