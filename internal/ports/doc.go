// Package ports defines the interfaces (ports) that connect the orchestrator
// to infrastructure adapters.
//
// The orchestrator is the only place where cross-subsystem failures are
// handled. Every collaborator it drives (radio link, cloud client, credential
// store, provisioning transport) is reached through one of these narrow
// interfaces.
//
// # Port Interfaces
//
//   - [NetworkLink]: Radio/network link readiness and status
//   - [CloudClient]: Cloud session (resolve, connect, publish)
//   - [AltClient]: Alternate-protocol telemetry publisher
//   - [CredentialStore]: Persistent commissioning flag and credential entries
//   - [StatusSink]: Receives cloud status and disconnect notifications
//   - [StatusRepository]: Persists the orchestrator status snapshot
//   - [Resetter]: Process-wide reset
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them over netlink,
// websocket, redis, sqlite and the file system.
package ports
