// Package stack assembles one mesh stack instance: the timer scheduler, the
// management transport, key management, the dataset managers, the leader's
// admission session and network data, an optional local commissioner and
// the border agent advertisement.
//
// Every component of an Instance is single-threaded. Run owns the event
// loop; other goroutines hand work to it with Post or Do. Alarm expiry and
// received datagrams arrive the same way.
package stack
