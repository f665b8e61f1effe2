// Package app composes the recognition services into a running application.
//
// Layout:
//
//	internal/app/
//	├── application.go      # Wiring and lifecycle
//	├── domain/             # Domain models (pure data)
//	├── period/             # Monthly period keys and reset due checks
//	├── storage/            # Store interface, in-memory and postgres backends
//	├── services/           # Business logic (members, recognitions, ...)
//	├── httpapi/            # REST handlers
//	├── system/             # Lifecycle-managed background services
//	├── metrics/            # Prometheus instrumentation
//	└── runtime/            # Process wiring: config, database, HTTP server
//
// Business rules live in internal/app/services; storage implementations hold
// no domain logic beyond schema constraints.
package app
