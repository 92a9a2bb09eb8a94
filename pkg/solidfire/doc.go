// Package solidfire provides a JSON-RPC client for the SolidFire cluster
// management API, limited to the calls the volume lifecycle needs.
//
// # Logging Verbosity Convention
//
// This package follows Kubernetes logging conventions for verbosity levels:
//
//   - V(0): Always visible - request failures, critical errors
//   - V(2): Production default - operation outcomes
//     Examples: "Created volume X", "Deleted volume Y"
//   - V(4): Debug level - intermediate steps, request parameters
//     Examples: "Account already exists", "Looking up access group"
//   - V(5): Trace level - raw JSON-RPC payloads
//     Examples: "Issuing CreateVolume: {...}", "Response: {...}"
//
// V(3) is avoided in favor of V(2) (if actionable) or V(4) (if diagnostic).
//
// Production deployments use V(2) by default. Set --v=4 for troubleshooting.
package solidfire
