// Package leader implements the leader side of commissioner admission.
//
// An external commissioner petitions the leader (c/lp) for the right to
// manage the network. The leader admits at most one commissioner at a time,
// hands it a fresh session ID and publishes the session in its
// commissioning data. The commissioner keeps the session alive with
// periodic keep-alives (c/la); a missed keep-alive, a mismatched session or
// an explicit resignation returns the leader to Idle.
package leader
