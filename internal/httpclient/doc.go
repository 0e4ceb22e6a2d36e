// Package httpclient provides a shared HTTP client with retry, SSE streaming,
// and typed JSON helpers used by providers without dedicated Go SDKs.
//
// This is an internal package and is not part of the public API. It is used by
// the o11y trace exporters (langfuse, phoenix, opik, langsmith), which send
// their batches with [DoJSON].
//
// # Client
//
// The [Client] type wraps net/http.Client with default headers (including
// bearer token authentication) and, when [WithRetries] is set, retry with
// exponential backoff and jitter on 429/503 responses. No retries happen by
// default, and errors from the HTTP transport itself are returned without
// retry. Configuration uses the functional options pattern:
//
//	c := httpclient.New(
//	    httpclient.WithBaseURL("https://api.example.com/v1"),
//	    httpclient.WithBearerToken(apiKey),
//	    httpclient.WithRetries(3),
//	    httpclient.WithTimeout(30 * time.Second),
//	)
//
// # Typed JSON Requests
//
// The [DoJSON] generic function sends an HTTP request with a JSON body and
// decodes the JSON response into the specified type. It handles retries
// transparently:
//
//	type Response struct { Result string `json:"result"` }
//	resp, err := httpclient.DoJSON[Response](ctx, client, "POST", "/chat", reqBody)
//
// # Server-Sent Events
//
// The [StreamSSE] and [StreamSSEWithBody] functions open SSE connections and
// return iter.Seq2[SSEEvent, error] iterators that yield parsed SSE events:
//
//	for event, err := range httpclient.StreamSSEWithBody(ctx, client, "POST", "/chat", body) {
//	    if err != nil { break }
//	    // handle event.Data
//	}
//
// # Error Handling
//
// API errors are returned as [*APIError] with the HTTP status code and
// response body. The client automatically parses JSON error bodies to extract
// human-readable error messages.
package httpclient
