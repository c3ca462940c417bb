// Package command implements the relay's command text formats.
//
// Clients send commands of the form "action-value" inside a frame. The
// server splits the payload on its first '-' and forwards the command to
// the actuator as a checksummed device line:
//
//	<action>-<value>-<crc16>\n
//
// The checksum is CRC-16/ARC over the UTF-8 bytes of "action-value",
// rendered as four lowercase hex digits.
//
// Responses to clients are the commands "acknowledge-" and "error-".
package command
