package domain

// Customer is the payer prefilled into the gateway checkout.
type Customer struct {
	Name  string `json:"name" validate:"required,min=2"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,e164"`
}

// CheckoutSession is the transient value object owned by one checkout
// call. It is built from a cart snapshot, lives for the duration of the
// payment sequence, and is discarded on any terminal outcome.
type CheckoutSession struct {
	AmountMinor     int64
	Currency        string
	Customer        Customer
	MerchantOrderID string
}
