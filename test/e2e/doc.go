// Package main provides end-to-end tests running the real proxy against a real store.
//
// # Components
//
// Stack provisions the pieces of one test run by hand: three ports from the
// allocator, the rendered proxy configuration, the store and the proxy
// started through the supervisor and the mock origin. Tests use it when they
// need to talk to the proxy directly instead of going through the scenario
// runner.
//
// The scenario specs drive scenario.Runner with the real binaries, which is
// what the run command does.
//
// # Test Architecture
//
//	┌─────────┐  POST   ┌─────────┐         ┌────────┐
//	│  Specs  │────────▶│  Proxy  │────────▶│ Origin │
//	└────┬────┘         └────┬────┘         └────────┘
//	     │                   │ LPUSH
//	     │ LLEN              ▼
//	     └─────────────▶┌─────────┐
//	                    │  Store  │
//	                    └─────────┘
//
// # Running
//
// Build the proxy with the s3 feature, then run from the directory holding it:
//
//	go run ./test/e2e --proxy-binary ./haproxy --store-binary redis-server
//
// Specs are skipped when either binary cannot be found.
package main
