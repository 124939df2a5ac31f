/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package telemetry collects metrics and traces for build number updates.
//
// A CI step exits long before any scraper could reach it, so metrics are
// pushed to a Prometheus Pushgateway and spans are exported over OTLP/HTTP.
// Both are optional and do nothing unless an endpoint is configured.
package telemetry
