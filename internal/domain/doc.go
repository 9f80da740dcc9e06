// Package domain contains the core domain entities and value objects for devlink.
//
// This package represents the innermost layer of the Clean Architecture. It has
// no dependencies on infrastructure concerns (radio, cloud transport, storage,
// logging) and contains only the vocabulary the orchestrator reasons in.
//
// # Entities
//
//   - [State]: The closed set of connectivity lifecycle states
//   - [Event]: A lifecycle event carried by the bounded event queue
//   - [Credentials]: Commissioning flags (certificate, key, commissioned)
//   - [CloudStatus]: The cloud connection status shown to the provisioning side
//
// # Design Principles
//
// Domain values are:
//   - Immutable after construction (events are never modified once enqueued)
//   - Free of infrastructure dependencies
//   - Comparable with == so tests can assert on them directly
package domain
