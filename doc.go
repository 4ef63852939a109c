// Package conductor provides an agent orchestration framework: it decomposes a
// user request into a graph of stages, assigns each stage to a language
// model-backed worker, routes intermediate outputs between stages, invokes
// side-effectful tools on behalf of workers, and produces durable artifacts.
//
// # Architecture
//
// Four subsystems carry the weight of the framework:
//
//   - pkg/engine resolves a stage DAG, dispatches ready stages onto a bounded
//     worker pool, and propagates failures to dependents.
//   - pkg/agent renders prompts from templates and memory, calls a provider,
//     parses tool calls, and records conversation turns.
//   - pkg/provider and pkg/resilience give every remote model endpoint a
//     uniform generate(prompt) contract wrapped in rate limiting, circuit
//     breaking, retry, and a per-call time limit.
//   - pkg/memory is the durable, ordered, per-(workflow, agent) log and
//     artifact store shared across workers.
//
// pkg/planner turns a user goal into a stage list, pkg/tool hosts the
// sandboxed side-effect operations agents may invoke, pkg/errs is the closed
// error taxonomy consumed throughout, and pkg/orchestrator is the thin facade
// that wires the rest together behind planAndExecute and runWorkflow.
//
// # Out of scope
//
// Conductor does not load configuration from files, encrypt credentials at
// rest, parse workflow definitions from human-authored documents, render
// output to disk, report metrics to console or disk, or provide a CLI or UI.
// It consumes a typed settings struct and a secret resolver; callers own
// those concerns.
package conductor
