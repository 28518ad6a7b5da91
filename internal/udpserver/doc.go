// Package udpserver owns the collector's UDP socket: it binds, receives
// datagrams with a bounded wait, hands each one to a handler and sends any
// replies back to the sender.
package udpserver
