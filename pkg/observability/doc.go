/*
Package observability exposes Prometheus collectors for the stack, the render
cache and the transform pipeline.

Metrics methods are nil-safe so components can be built without them.
*/
package observability
