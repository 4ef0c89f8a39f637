// Package adapter connects the reconciliation service to the outside world.
//
// Each adapter implements one of the collaborator interfaces the service
// consumes: a design source, an observed-state reader, a command runner for
// remediation, or a preflight check.
//
// # Sources
//
// FileSource reads design documents and captured device state from a
// directory tree laid out as <dir>/<circuit>/<TID>.json (or .yaml). It backs
// the design side in every deployment and the observed side in offline runs.
//
// # Transports
//
// SSHRunner reaches devices through a command gateway over SSH. Every device
// command is a named command file; parameters travel as JSON on stdin and the
// gateway answers with JSON. The same runner reads observed configuration by
// issuing the configured read command.
//
// GNMIClient reads observed configuration with gNMI Get and sends commands as
// gNMI Set updates, for devices that expose a gNMI agent.
//
// # Preflight
//
// NmapPreflight verifies that the management ports of a device answer before a
// pass fetches anything. A closed port turns into state_unavailable.
//
// # Wiring
//
// Build assembles the adapters named by the configuration into a Stack.
package adapter
