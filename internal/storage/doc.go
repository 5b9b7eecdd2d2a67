// Package storage defines the telemetry store contract and opens the
// configured backend.
//
// Architecture:
//
//	┌─────────────┐     ┌──────────────┐     ┌──────────────────┐
//	│  Ingestion  │────▶│    Engine    │────▶│ sqlite / duckdb  │
//	│   Writer    │     │  (contract)  │     │ mysql / memory   │
//	└─────────────┘     └──────────────┘     └──────────────────┘
//	                           │
//	                           ▼
//	                    ┌──────────────┐
//	                    │ Daily copy   │  (embedded backends only)
//	                    │   mirror     │
//	                    └──────────────┘
//
// Callers never branch on the backend: everything outside this package
// tree talks to an Engine.
package storage
