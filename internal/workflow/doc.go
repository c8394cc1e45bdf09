// Package workflow runs the capture delivery control loop.
//
// The Manager owns a single loop goroutine. Every iteration it polls the
// camera and intrusion arbiters, refreshes the time service, and checks
// whether a sweep, heartbeat, or reconnect attempt is due. An admitted camera
// event goes to the Orchestrator, which captures one artifact and either
// delivers it immediately or hands it to the spool. The Sweeper drains the
// spool oldest first whenever the backend is reachable.
//
// Because the orchestrator and sweeper only ever run on the loop goroutine,
// no record is ever the target of two delivery attempts at once. Producers on
// other goroutines (netlink monitor, API handlers) only offer raw triggers or
// set the manual sweep flag.
package workflow
