// Package httpdemo is a minimal HTTP-like TCP server that runs every
// connection as one job on a worker pool.
//
// The first request line is matched exactly:
//
//	GET / HTTP/1.1       -> 200, home.html
//	GET /sleep HTTP/1.1  -> 200, home.html after Config.SleepDelay
//	anything else        -> 404, error_404.html
//
// Pages are read from Config.ContentDir on every request. The response is
// the status line, a Content-Length header, a blank line and the body.
package httpdemo
