// Package session owns the coordinator<->participant transport.
//
// Ownership boundary:
// - identify / barrier submission / verdict messages and their validation
// - length-implicit JSON framing over a unix stream socket
// - dial retry backoff and transport timeout defaults
//
// Messages carry no delimiter. A reader extracts consecutive JSON values from
// the byte stream, so sends coalesced by the kernel are still split correctly.
package session
