// Package meshcop defines the mesh commissioning protocol vocabulary shared
// by the leader, the dataset managers and the commissioner: TLV types,
// timestamps, the State TLV, the security policy, operational datasets and
// the management URI paths.
//
// Values are decoded from and encoded to the TLV wire format provided by
// package tlv. All multi-byte integers are big-endian.
package meshcop
