// ABOUTME: OpenTelemetry MeterProvider setup with an OTLP gRPC exporter
// ABOUTME: Returns an exporter-less provider when no endpoint is configured

package telemetry

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// exportInterval is how often metrics are pushed to the collector.
const exportInterval = 10 * time.Second

// NewMeterProvider creates a MeterProvider exporting via OTLP gRPC to endpoint.
// endpoint may be host:port or a URL; only the host is used for the dial and
// https endpoints use TLS. An empty endpoint returns a provider with no reader.
func NewMeterProvider(ctx context.Context, endpoint, serviceName string) (*sdkmetric.MeterProvider, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return sdkmetric.NewMeterProvider(), nil
	}

	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building resource: %w", err)
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(u.Host)}
	if u.Scheme != "https" {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exp, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(exportInterval))),
	), nil
}
