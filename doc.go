// Package ozwald is a service reconciliation engine for container
// infrastructure.
//
// # Overview
//
// Ozwald converges a host toward an operator-submitted desired state:
// service definitions are resolved against hardware varieties and
// runtime profiles, admitted against measured resource footprints, fed
// their secrets from an encrypted vault, and driven through an explicit
// lifecycle by a single-writer reconciliation controller.
//
// The engine consists of five components:
//   - Resolver: pure merge of definition, variety and profile layers
//   - Footprint Estimator: measures real resource cost and gates admission
//   - Active-State Store: CAS-guarded instance records (Redis-backed)
//   - Reconciliation Controller: the provisioner loop per catalog host
//   - Secrets Vault: token-sealed lockers, materialized per activation
//
// # Architecture
//
//	┌─────────────────┐
//	│  REST API / WS  │
//	│  (Echo)         │
//	└────────┬────────┘
//	         │ desired state, lockers, footprint requests
//	┌────────▼────────┐       ┌─────────────────┐
//	│  Provisioner    │◄──────┤  Footprint      │
//	│  (reconcile)    │       │  Estimator      │
//	└────┬───────┬────┘       └─────────────────┘
//	     │       │
//	┌────▼───┐ ┌─▼───────────┐
//	│ Vault  │ │ State Store │
//	│(Redis) │ │ (Redis)     │
//	└────────┘ └─────────────┘
//	     │
//	┌────▼────────────┐
//	│  Runtime Shim   │
//	│  (Docker API)   │
//	└─────────────────┘
//
// # Instance Lifecycle
//
// Instances move through desired, admitting, secrets-pending,
// launching, active and draining, and settle in one of three terminal
// states: stopped, failed or superseded. Terminal records are retained
// for inspection and pruned after a configurable retention window.
//
// Desired-state submissions are whole-realm: the diff against current
// records is a symmetric difference on identity. Removed identities
// drain to stopped, new ones are created desired, and identities whose
// resolved spec changed are superseded and re-created. Re-submitting an
// unchanged desired state causes zero transitions.
//
// # Usage
//
// Start the API server and reconciliation controller:
//
//	ozwald server --config ozwald.yaml
//
// Validate a catalog file:
//
//	ozwald validate catalog.yaml
//
// Queue a footprint measurement and inspect instance state:
//
//	ozwald footprint request whisper --realm prod --profile large
//	ozwald footprint logs whisper --profile large
//	ozwald status --realm prod
//
// # Configuration
//
// Configuration can be provided via:
//   - YAML file (ozwald.yaml)
//   - Environment variables (OZ_ prefix)
//   - .env file
//
// Example configuration:
//
//	server:
//	  host: 0.0.0.0
//	  port: 8097
//	redis:
//	  addr: localhost:6379
//	catalog:
//	  path: catalog.yaml
//	provisioner:
//	  host: gpu-01
//	  reconcile_interval: 2s
//	  step_timeout: 10m
//
// # API Endpoints
//
// Catalog and realms:
//   - GET /api/v1/hosts                   - Host inventory
//   - GET /api/v1/realms                  - List realms
//   - GET /api/v1/realms/:realm/services  - Service definitions
//
// Desired state and instances:
//   - PUT /api/v1/realms/:realm/services           - Submit desired state
//   - GET /api/v1/realms/:realm/instances          - List instance records
//   - GET /api/v1/realms/:realm/instances/:service - Get one instance
//
// Secrets:
//   - PUT /api/v1/realms/:realm/lockers/:locker - Replace locker contents
//
// Footprints:
//   - GET  /api/v1/footprints      - Pending measurement queue
//   - POST /api/v1/footprints      - Queue a measurement run
//   - GET  /api/v1/footprints/logs - Output of the latest measurement run
//
// Observability:
//   - GET /health     - Health check
//   - GET /metrics    - Prometheus metrics
//   - GET /api/v1/ws  - WebSocket event feed
//
// # Development
//
// Run tests:
//
//	go test ./...
//
// Build the binary:
//
//	go build -o ozwald ./cmd/ozwald
//
// # Technology Stack
//
//   - Go 1.25+
//   - Echo v4 (Web framework)
//   - Redis (state store, vault blobs, footprint queue)
//   - Docker API (Container runtime)
//   - Prometheus client (metrics)
//   - XChaCha20-Poly1305 + scrypt (locker encryption)
//
// # License
//
// Ozwald is open source software.
package ozwald
