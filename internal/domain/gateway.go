package domain

// Verification is the gateway's answer for a charge reference. Only an
// explicit "success" status settles a payment.
type Verification struct {
	Reference string
	Status    string
	Amount    Money
	Metadata  map[string]any
}

func (v Verification) Succeeded() bool { return v.Status == "success" }

// TransferResult is the gateway's answer to an initiated bank transfer.
type TransferResult struct {
	Status     string
	TransferID string
}
