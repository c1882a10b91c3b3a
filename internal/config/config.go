// Package config holds the serial link baud rate for the NCP family
// this tool targets. Per spec.md, it is a fixed, device-specific
// constant rather than a deployment-configurable layer. No flow-control
// setting is held here.
package config

// BaudRate is the fixed baud rate used to open the NCP's serial port.
const BaudRate = 115200
