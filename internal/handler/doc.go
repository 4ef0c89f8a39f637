// Package handler implements the HTTP API served by `circuitsync serve`.
//
// # Endpoints
//
//	GET  /api/health                      mode and enabled capabilities
//	GET  /api/circuits                    circuits known to the inventory
//	POST /api/circuits/{id}/reconcile     run a pass for every device of a circuit
//	GET  /api/results                     last result per device (?circuit=, ?dirty=true)
//	GET  /api/results/{device}            last result of one device
//	GET  /api/results/{device}/history    stored passes, newest first (?limit=)
//	GET  /api/events                      Server-Sent Events (see package hub)
//
// # Response Format
//
// Success responses return JSON with 200 or 202. Errors return JSON with an
// {error, details} body and a matching status code.
//
// # Middleware
//
// Chain wraps the mux with Recover, CORS and Logger.
package handler
