// Package http provides the retrying HTTP transport for the repository API.
//
// This package handles:
//   - Basic authentication with a personal access token
//   - The api-version query parameter on every URL
//   - JSON request bodies (POST) and plain GETs
//   - A bounded retry policy with a fixed delay between attempts
//
// HTTP 400 is terminal and returned at once. Any other non-2xx status or a
// connection failure is retried; when the attempts run out the returned
// error wraps a *multierror.Error holding every attempt's *TransportError
// in order.
//
// # Usage
//
//	client := http.NewClient(token, http.Options{
//	    Timeout:       30 * time.Second,
//	    RetryAttempts: 2,
//	    RetryDelay:    time.Second,
//	})
//
//	body, err := client.Post(ctx, repoURL+"/itemsbatch", request)
//	content, err := client.Get(ctx, item.URL)
package http
