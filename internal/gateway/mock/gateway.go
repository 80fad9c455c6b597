package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/platewise/cartpay/internal/gateway"
)

// Gateway is a testify mock of gateway.Gateway.
type Gateway struct {
	mock.Mock
}

func (m *Gateway) Checkout(ctx context.Context, opts gateway.CheckoutOptions) (*gateway.Result, error) {
	args := m.Called(ctx, opts)
	if res := args.Get(0); res != nil {
		return res.(*gateway.Result), args.Error(1)
	}
	return nil, args.Error(1)
}
