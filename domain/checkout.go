package domain

// CartItemInput is a single line of the client-supplied cart snapshot.
// It is never trusted for the final charged amount; only its derived
// line items and product references reach the gateway.
type CartItemInput struct {
	ProductID int64    `json:"product_id"`
	Name      string   `json:"name"`
	Price     float64  `json:"price"`
	Quantity  int32    `json:"quantity"`
	Images    []string `json:"images"`
}

// CouponOutcome records what happened to a coupon code supplied at checkout.
// A bad code never fails the request; it downgrades to Skipped with a reason.
type CouponOutcome struct {
	Applied bool   `json:"applied"`
	Code    string `json:"code,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

func CouponApplied(code string) CouponOutcome {
	return CouponOutcome{Applied: true, Code: code}
}

func CouponSkipped(code, reason string) CouponOutcome {
	return CouponOutcome{Applied: false, Code: code, Reason: reason}
}

// CouponNone is the outcome when no code was supplied at all.
func CouponNone() CouponOutcome {
	return CouponOutcome{}
}
