// Package discovery advertises a border agent over mDNS/DNS-SD.
//
// # Border Agent (_meshcop._udp)
//
// A node that accepts commissioner connections advertises this service so
// that commissioners on the infrastructure link can find it. The instance
// name is the network name followed by the node's short ID. TXT records:
//
//   - rv: TXT record format version, always "1"
//   - tv: protocol version string
//   - nn: network name (omitted while not commissioned)
//   - xp: extended PAN ID, hex (omitted while not commissioned)
//   - sb: state bitmap, 8 hex digits
//   - at: active timestamp, 16 hex digits (omitted while not commissioned)
//
// The Publisher rebuilds the records from the Active dataset whenever it
// changes and pushes them to an Advertiser.
package discovery
