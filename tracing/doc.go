// Package tracing wraps OpenTelemetry so that agent calls and coordinator
// steps can be recorded as spans without every caller importing the SDK.
// When no provider has been installed the global no-op provider is used and
// spans cost next to nothing.
package tracing
