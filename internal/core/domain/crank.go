package domain

// CrankableDeal is a deal that is expired but still open. Candidates
// are re-computed every poll iteration and never cached.
type CrankableDeal struct {
	Address string
}

// CrankableOffer is an open offer whose deal is no longer open.
type CrankableOffer struct {
	Address     string
	DealAddress string
}

// CrankResult is the outcome of one crank submission. The executor
// never lets an error escape; failures are folded into Err.
type CrankResult struct {
	Success   bool
	Address   string
	Signature string
	Err       string
}
