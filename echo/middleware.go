// Package echo gates echo routes behind payment.
package echo

import (
	"github.com/labstack/echo/v4"

	"github.com/mark3labs/mcp-go-paywall"
)

// ContextKey is the echo context key holding the *paywall.PaymentContext
const ContextKey = "paywall.payment"

// Middleware answers unpaid requests with the payment required response.
// Paid requests continue with the payment context stored under ContextKey
// and on the request context.
func Middleware(p *paywall.Payment, opts ...paywall.Option) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			pc, required := paywall.RequirePayment(req.Context(), req.Header, p, opts...)
			if required != nil {
				for k, vs := range required.Header {
					for _, v := range vs {
						c.Response().Header().Set(k, v)
					}
				}
				return c.JSON(required.StatusCode, required.Body)
			}

			c.Set(ContextKey, pc)
			c.SetRequest(req.WithContext(paywall.NewContext(req.Context(), pc)))

			res := c.Response()
			res.Before(func() {
				paywall.MergeHeaders(res.Header(), pc.Headers)
			})
			err := next(c)
			if !res.Committed {
				paywall.MergeHeaders(res.Header(), pc.Headers)
			}
			return err
		}
	}
}

// FromContext returns the payment context stored by Middleware
func FromContext(c echo.Context) (*paywall.PaymentContext, bool) {
	pc, ok := c.Get(ContextKey).(*paywall.PaymentContext)
	return pc, ok
}
