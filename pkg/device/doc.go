// Package device provides access to the actuator controller the relay
// forwards commands to.
//
// The controller is normally a microcontroller on a serial line. Open
// configures the port and discards anything left in its buffers so the
// first line the controller sees is a complete command.
package device
