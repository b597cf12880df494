// Package api exposes the REST interface for submitting work artifacts,
// tracking review progress, and retrieving council verdicts. It also serves
// the Prometheus metrics endpoint and a basic health probe.
package api
