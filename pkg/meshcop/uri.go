package meshcop

// Management URI paths.
const (
	URIPetition        = "c/lp"
	URIKeepAlive       = "c/la"
	URIActiveSet       = "c/as"
	URIActiveGet       = "c/ag"
	URIPendingSet      = "c/ps"
	URIPendingGet      = "c/pg"
	URICommissionerSet = "c/cs"
	URICommissionerGet = "c/cg"
	URIDatasetChanged  = "c/dc"
)

// ManagementPort is the UDP port management messages are exchanged on.
const ManagementPort = 61631
