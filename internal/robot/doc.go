// Package robot is the reference controller bound to a remote sensor server.
//
// Ownership boundary:
// - translates broadcast verbs into timed motor moves
// - owns tunable parameters set through sensor-update
// - polls a sensor source on each tick and pushes readings to the server
//
// The server calls SensorUpdate and Broadcast from its event loop, so neither
// blocks beyond one motor command.
package robot
