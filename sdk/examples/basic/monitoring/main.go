// Monitoring Example
// This example demonstrates how to expose client metrics for Prometheus
// and log auth lifecycle events with the bundled observers.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/birbparty/birb-call/sdk"
	"github.com/birbparty/birb-call/sdk/observers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	registry := prometheus.NewRegistry()
	metrics := sdk.NewMetricsCollector()

	client, err := sdk.NewClient(sdk.DefaultConfig().
		WithBaseURL("http://localhost:8080").
		WithLogger(logger).
		WithObserver(sdk.NewCompositeObserver(
			observers.NewPrometheusObserver(registry),
			observers.NewLogObserver(logger),
			metrics,
		)))
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	// Expose metrics on :9090/metrics
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		log.Println("📊 Metrics available at http://localhost:9090/metrics")
		if err := http.ListenAndServe(":9090", mux); err != nil {
			log.Printf("Metrics server stopped: %v", err)
		}
	}()

	client.Define("/health", func(resp *sdk.Response) {
		fmt.Printf("✓ health: %v\n", resp.Payload)
	})

	ctx := context.Background()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for i := 0; i < 10; i++ {
		if _, err := client.Call(ctx, "/health", sdk.GET); err != nil {
			log.Fatalf("Failed to call: %v", err)
		}
		<-ticker.C
	}
	client.Wait()

	fmt.Println("\n--- Summary ---")
	for k, v := range metrics.GetMetrics() {
		fmt.Printf("%s: %v\n", k, v)
	}
}
