// Package work implements the single-consumer job processor that executes
// submitted runs one at a time, in submission order.
//
// Each job runs under its own timeout context. A job that fails is logged and
// dropped; engine runs are deterministic for a fixed seed, so retrying them
// would reproduce the same outcome.
package work
