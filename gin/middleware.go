// Package gin gates gin routes behind payment.
package gin

import (
	gingonic "github.com/gin-gonic/gin"

	"github.com/mark3labs/mcp-go-paywall"
)

// ContextKey is the gin context key holding the *paywall.PaymentContext
const ContextKey = "paywall.payment"

// Middleware aborts unpaid requests with the payment required response.
// Paid requests continue with the payment context stored under ContextKey
// and on the request context.
func Middleware(p *paywall.Payment, opts ...paywall.Option) gingonic.HandlerFunc {
	return func(c *gingonic.Context) {
		pc, required := paywall.RequirePayment(c.Request.Context(), c.Request.Header, p, opts...)
		if required != nil {
			for k, vs := range required.Header {
				for _, v := range vs {
					c.Writer.Header().Set(k, v)
				}
			}
			c.AbortWithStatusJSON(required.StatusCode, required.Body)
			return
		}

		c.Set(ContextKey, pc)
		c.Request = c.Request.WithContext(paywall.NewContext(c.Request.Context(), pc))

		// set before the handler runs so values the handler sets replace them
		paywall.MergeHeaders(c.Writer.Header(), pc.Headers)
		c.Next()
	}
}

// FromContext returns the payment context stored by Middleware
func FromContext(c *gingonic.Context) (*paywall.PaymentContext, bool) {
	v, ok := c.Get(ContextKey)
	if !ok {
		return nil, false
	}
	pc, ok := v.(*paywall.PaymentContext)
	return pc, ok
}
