// Package netdata holds the leader's Network Data versioning and the
// commissioning data set by the admitted commissioner.
//
// Commissioning data is the Border Agent Locator, Commissioner Session ID,
// Steering Data and Joiner UDP Port published while a commissioner is
// admitted. The leader writes it on petition and clears it when the session
// ends; the commissioner may update the steering fields through
// MGMT_COMM_SET (c/cs) and read them back through MGMT_COMM_GET (c/cg).
package netdata
