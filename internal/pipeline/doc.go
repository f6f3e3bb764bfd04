// Package pipeline implements the step execution engine: the durable
// per-task artifact context, the step contract with declared inputs and
// outputs, durable progress tracking, and the processor state machine
// that runs steps in order with bounded retries and idempotent
// resumption.
package pipeline
