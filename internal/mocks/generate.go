// Package mocks provides test doubles for the core ports.
//
// The settlement and adapter ports use go.uber.org/mock (gomock) mocks
// generated via the go:generate directives below. The job repository has a
// hand-written in-memory fake instead: dispatch-race tests need real
// compare-and-swap semantics, which expectation-based mocks cannot express.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
package mocks

//go:generate go run go.uber.org/mock/mockgen -package=mocks -destination=core_mocks.go github.com/zapgate/zapgate/internal/core InvoiceProvider,BackendAdapter,CacheRepository
