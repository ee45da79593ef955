package domain

// AckDecision is the terminal outcome for a delivered message
type AckDecision int

const (
	// Acknowledge removes the message from the queue
	Acknowledge AckDecision = iota
	// RejectPermanently removes the message without requeueing it
	RejectPermanently
)

func (d AckDecision) String() string {
	if d == Acknowledge {
		return "acknowledge"
	}
	return "reject_permanently"
}

// DeliveryOutcome classifies a callback attempt
type DeliveryOutcome int

const (
	// Delivered means the callback returned a 2xx status
	Delivered DeliveryOutcome = iota
	// Rejected means a transport failure or a non-2xx status
	Rejected
)

func (o DeliveryOutcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "rejected"
}
