// Package coap implements the request/response transport used by the
// management protocol.
//
// Messages carry a type (confirmable, non-confirmable, acknowledgment or
// reset), a class.detail code, a message ID, a token, a resource path and a
// TLV payload. On the wire a message is a CBOR map with integer keys; the
// header layout of RFC 7252 and its retransmission machinery are not
// reproduced.
//
// An Agent is owned by one event loop. It dispatches inbound requests to
// registered resources and matches responses to outstanding requests by
// token. The number of outstanding requests is bounded; when every slot is
// in use SendRequest fails with ErrNoBufs. Each slot owns a scheduler Timer
// that reports ErrResponseTimeout if no response arrives.
//
// Datagrams travel over an Endpoint. Loopback connects agents inside one
// process and is used by tests and the simulator; UDPEndpoint binds a real
// socket and posts received datagrams into the owning event loop.
package coap
