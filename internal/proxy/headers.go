package proxy

import "net/http"

// hopByHopHeaders must never be forwarded in either direction; they
// describe a single hop's connection, not the end-to-end message.
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// clientSensitiveHeaders are stripped on the forward path: credentials and
// connection metadata that belong to the client-to-gateway hop, not the
// gateway-to-upstream hop.
var clientSensitiveHeaders = []string{
	"Cookie", "Authorization", "X-Forwarded-For", "X-Forwarded-Host",
	"X-Forwarded-Proto", "X-Real-Ip", "Accept-Encoding", "Host", "Content-Length",
}

// cleanForwardHeaders copies src into a new header set with hop-by-hop and
// client-sensitive headers removed, ready for the upstream-specific
// Authorization/Referer/Title headers to be layered on top.
func cleanForwardHeaders(src http.Header) http.Header {
	out := src.Clone()
	for _, h := range hopByHopHeaders {
		out.Del(h)
	}
	for _, h := range clientSensitiveHeaders {
		out.Del(h)
	}
	return out
}

// cleanReturnHeaders copies src (the upstream response headers) into a new
// header set with hop-by-hop headers plus Content-Length and
// Content-Encoding removed, since intermediate buffering may have changed
// the body's length or encoding.
func cleanReturnHeaders(src http.Header) http.Header {
	out := src.Clone()
	for _, h := range hopByHopHeaders {
		out.Del(h)
	}
	out.Del("Content-Length")
	out.Del("Content-Encoding")
	return out
}
