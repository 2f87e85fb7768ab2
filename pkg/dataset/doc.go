// Package dataset manages the Active and Pending operational datasets.
//
// Each manager keeps two copies of its dataset. The local copy is what this
// node was configured with or last learned; the network copy is the one the
// leader has confirmed as authoritative. Get returns the local copy filled
// in with any TLVs only the network copy has.
//
// On the leader the managers serve MGMT_ACTIVE_SET (c/as) and
// MGMT_PENDING_SET (c/ps). A Set is validated completely before anything is
// changed and is answered with a State TLV. Every node serves the matching
// Get resources (c/ag, c/pg).
//
// The Pending manager owns a commit timer derived from the Delay Timer TLV.
// Every Pending dataset received from the network has its delay raised to
// the configured floor. When the timer fires the Pending dataset is promoted
// to Active, its key material is applied through the key manager and the
// Pending slot is cleared. A second fire with nothing pending does nothing.
//
// Only the Active local dataset is persisted.
package dataset
