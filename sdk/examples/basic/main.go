package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/birbparty/birb-call/sdk"
	"golang.org/x/oauth2"
)

const baseURL = "http://localhost:8080"

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// login fetches a token pair from the fixture API (go run ./cmd/fixture-api).
func login(ctx context.Context) (*tokens, error) {
	body, _ := json.Marshal(map[string]string{"username": "birb", "password": "tweet"})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login failed: %s", resp.Status)
	}
	var t tokens
	return &t, json.NewDecoder(resp.Body).Decode(&t)
}

func main() {
	ctx := context.Background()

	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL(baseURL).
		WithRequestTimeout(10 * time.Second).
		WithErrorHandler(func(err error) {
			switch {
			case errors.Is(err, sdk.ErrAuthExhausted):
				log.Printf("✗ Session lost, log in again: %v", err)
			case errors.Is(err, sdk.ErrHTTP):
				log.Printf("✗ HTTP %d: %v", sdk.StatusCode(err), err)
			default:
				log.Printf("✗ %v", err)
			}
		}))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	t, err := login(ctx)
	if err != nil {
		log.Fatalf("Make sure the fixture API is running on %s: %v", baseURL, err)
	}
	fmt.Println("✓ Logged in")

	client.SetBearerToken(t.AccessToken)
	oauthConfig := &oauth2.Config{
		Endpoint: oauth2.Endpoint{TokenURL: baseURL + "/oauth/token", AuthStyle: oauth2.AuthStyleInParams},
	}
	client.SetRevalidationHandler(sdk.OAuth2Revalidator(sdk.RefreshTokenSource(ctx, oauthConfig, t.RefreshToken)))

	// Example 1: PUT then GET a JSON resource
	fmt.Println("\n--- Example 1: JSON ---")
	client.Define("/items/{id}", func(resp *sdk.Response) {
		fmt.Printf("✓ %s %s -> %d %v\n", resp.Call.Verb, resp.URL, resp.StatusCode, resp.Payload)
	}, sdk.PUT, sdk.GET)

	item := map[string]interface{}{"name": "seed", "tags": []string{"snack"}}
	if _, err := client.Call(ctx, "/items/{id}", sdk.PUT,
		sdk.WithPathVariable("id", "seed"), sdk.WithPayload(item)); err != nil {
		log.Fatalf("Failed to call: %v", err)
	}
	client.Wait()
	if _, err := client.Call(ctx, "/items/{id}", sdk.GET, sdk.WithPathVariable("id", "seed")); err != nil {
		log.Fatalf("Failed to call: %v", err)
	}

	// Identical calls are suppressed while the first is in flight
	sent, _ := client.Call(ctx, "/items/{id}", sdk.GET, sdk.WithPathVariable("id", "seed"))
	fmt.Printf("✓ Duplicate sent: %v\n", sent)
	client.Wait()

	// Example 2: Multipart upload with progress
	fmt.Println("\n--- Example 2: Upload ---")
	client.Define("/uploads", func(resp *sdk.Response) {
		fmt.Printf("\n✓ Uploaded: %s\n", resp.Body)
	}, sdk.PostForm)

	form := sdk.NewForm(
		sdk.TextField("title", "feathers"),
		sdk.FileField("attachment", sdk.File{Name: "feather.txt", ContentType: "text/plain", Data: []byte("soft")}),
	)
	if _, err := client.Call(ctx, "/uploads", sdk.PostForm,
		sdk.WithPayload(form),
		sdk.WithProgress(func(p sdk.Progress) {
			fmt.Printf("\ruploading %5.1f%%", p.Percent)
		})); err != nil {
		log.Fatalf("Failed to upload: %v", err)
	}
	client.Wait()

	// Example 3: Download
	fmt.Println("\n--- Example 3: Download ---")
	result, err := client.Download(ctx, sdk.DownloadRequest{URL: "/files/feather.txt"}, nil)
	if err != nil {
		log.Fatalf("Failed to download: %v", err)
	}
	fmt.Printf("✓ Saved %s (%d bytes, %s)\n", result.Path, result.Size, result.MIMEType)
}
