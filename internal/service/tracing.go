package service

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("github.com/fjod/storefront/internal/service")
