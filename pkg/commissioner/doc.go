// Package commissioner is the client side of commissioner admission.
//
// A Commissioner petitions the leader for a session, keeps it alive and,
// while active, manages the network through MGMT_ACTIVE/PENDING_SET and
// MGMT_COMMISSIONER_SET. Requests made on its behalf carry the session ID
// the leader handed out.
package commissioner
