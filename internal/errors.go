package internal

import "errors"

var (
	ErrInvalidOrder              = errors.New("invalid order")
	ErrDegenerateOrder           = errors.New("order total is zero")
	ErrUnsupportedTransaction    = errors.New("PayBox does not support transactions without any upfront costs or fees, please select another gateway")
	ErrUpstreamUnavailable       = errors.New("payment processor unavailable")
	ErrUpstreamMalformedResponse = errors.New("malformed payment processor response")
)
