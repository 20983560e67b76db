// Package sdk is a REST call layer for API clients. Endpoints are defined
// once by verb and route template and then called many times; results are
// delivered asynchronously to the handlers registered for the endpoint.
//
// # Features
//
// The client provides:
//   - Route templates with {name} placeholders filled from path variables
//   - Suppression of identical requests while one is still in flight
//   - Bearer token recovery: the first 401 triggers a single refresh, later
//     401s are parked, and parked calls are replayed once with the new token
//   - JSON calls (GET, POST_JSON, PUT, DELETE) and multipart form uploads
//     with progress reporting
//   - A single error handler for every runtime failure
//   - Observer hooks for metrics, tracing and event publishing
//   - A download helper that names files from Content-Disposition
//   - WASM support for the download helper
//
// # Basic Usage
//
//	package main
//
//	import (
//	    "context"
//	    "log"
//
//	    "github.com/birbparty/birb-call/sdk"
//	)
//
//	func main() {
//	    client, err := sdk.NewClient(sdk.DefaultConfig().
//	        WithBaseURL("https://api.example.com"))
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer client.Close()
//
//	    client.Define("/items/{id}", func(resp *sdk.Response) {
//	        log.Printf("item: %v", resp.Payload)
//	    })
//
//	    ctx := context.Background()
//	    if _, err := client.Call(ctx, "/items/{id}", sdk.GET,
//	        sdk.WithPathVariable("id", "42")); err != nil {
//	        log.Fatal(err) // undefined endpoint
//	    }
//	    client.Wait()
//	}
//
// # Duplicate Calls
//
// Call returns false, without sending anything, when a request with the
// same URL, verb, payload and headers has not completed yet:
//
//	first, _ := client.Call(ctx, "/items", sdk.GET)  // true
//	second, _ := client.Call(ctx, "/items", sdk.GET) // false while first runs
//
// # Token Recovery
//
// Install a token and a revalidation handler. After the first 401 the
// handler runs once; it must install a new token and call Recall:
//
//	client.SetBearerToken(accessToken)
//	client.SetRevalidationHandler(func(ctx context.Context, c *sdk.Client, failed *sdk.Response) error {
//	    tok, err := refresh(ctx)
//	    if err != nil {
//	        return err // delivers ErrAuthExhausted
//	    }
//	    c.SetBearerToken(tok)
//	    c.Recall()
//	    return nil
//	})
//
// With golang.org/x/oauth2 the same thing is:
//
//	ts := sdk.RefreshTokenSource(ctx, oauthConfig, refreshToken)
//	client.SetRevalidationHandler(sdk.OAuth2Revalidator(ts))
//
// Recovery gives up, discarding the token, when the handler fails or after
// MaxAuthRetries refresh cycles that recovered nothing.
//
// # Uploads
//
//	form := sdk.NewForm(
//	    sdk.TextField("title", "holiday"),
//	    sdk.FileField("photos", photo1, photo2),
//	)
//	client.Define("/uploads", onUploaded, sdk.PostForm)
//	client.Call(ctx, "/uploads", sdk.PostForm,
//	    sdk.WithPayload(form),
//	    sdk.WithProgress(func(p sdk.Progress) {
//	        fmt.Printf("\r%.0f%%", p.Percent)
//	    }))
//
// # Error Handling
//
// Runtime errors go to the error handler; they match the package sentinels
// with errors.Is:
//
//	client.SetErrorHandler(func(err error) {
//	    switch {
//	    case errors.Is(err, sdk.ErrAuthExhausted):
//	        // ask the user to log in again
//	    case errors.Is(err, sdk.ErrTimeout):
//	    case errors.Is(err, sdk.ErrHTTP):
//	        log.Printf("status %d", sdk.StatusCode(err))
//	    }
//	})
package sdk
