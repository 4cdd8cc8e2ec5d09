package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mark3labs/mcp-go-paywall"
)

type paymentError struct {
	details *mcp.JSONRPCErrorDetails
}

func (e *paymentError) Error() string {
	return e.details.Message
}

func (e *paymentError) JSONRPCErrorDetails() *mcp.JSONRPCErrorDetails {
	return e.details
}

func newPaymentError(code int, message string, data any) error {
	return &paymentError{
		details: &mcp.JSONRPCErrorDetails{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

type hasJSONRPCErrorDetails interface {
	JSONRPCErrorDetails() *mcp.JSONRPCErrorDetails
}

type headersKey struct{}

// withPaymentHeaders exposes the proof headers of the HTTP request to tool calls
func withPaymentHeaders(ctx context.Context, r *http.Request) context.Context {
	h := http.Header{}
	for _, name := range []string{paywall.HeaderX402, paywall.HeaderDirect} {
		if v := r.Header.Get(name); v != "" {
			h.Set(name, v)
		}
	}
	if len(h) == 0 {
		return ctx
	}
	return context.WithValue(ctx, headersKey{}, h)
}

// paymentHeaders collects the payment of a tool call. _meta entries take
// precedence over HTTP headers. A string entry is used as an encoded header
// value; an object is encoded first.
func paymentHeaders(ctx context.Context, req mcp.CallToolRequest) (http.Header, error) {
	h := http.Header{}
	if fromHTTP, ok := ctx.Value(headersKey{}).(http.Header); ok {
		for k, vs := range fromHTTP {
			h[k] = append([]string(nil), vs...)
		}
	}
	if req.Params.Meta == nil || req.Params.Meta.AdditionalFields == nil {
		return h, nil
	}

	for key, header := range map[string]string{
		MetaPayment:     paywall.HeaderX402,
		MetaDirectProof: paywall.HeaderDirect,
	} {
		data, ok := req.Params.Meta.AdditionalFields[key]
		if !ok || data == nil {
			continue
		}
		if s, ok := data.(string); ok {
			h.Set(header, s)
			continue
		}
		value, err := paywall.EncodeHeaderValue(data)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		h.Set(header, value)
	}
	return h, nil
}

func newPaymentMiddleware(s *PaywallServer) server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			payment, needsPayment := s.payment(req.Params.Name)
			if !needsPayment {
				return next(ctx, req)
			}
			log := s.logger.With().Str("tool", req.Params.Name).Logger()

			h, err := paymentHeaders(ctx, req)
			if err != nil {
				log.Debug().Err(err).Msg("malformed payment in _meta")
				return nil, newPaymentError(mcp.INVALID_PARAMS, err.Error(), nil)
			}

			pc, required := paywall.RequirePayment(ctx, h, payment, paywall.WithSettle(s.config.Settle))
			if required != nil {
				body := required.Body
				if b, ok := body.(paywall.PaymentRequiredBody); ok && b.Resource == "" {
					b.Resource = fmt.Sprintf("mcp://tools/%s", req.Params.Name)
					body = b
				}
				code := ""
				if required.Result != nil && required.Result.Failure != nil {
					code = string(required.Result.Failure.Code)
				}
				log.Debug().Str("code", code).Msg("payment required")
				return nil, newPaymentError(http.StatusPaymentRequired, "Payment required", body)
			}
			log.Debug().Str("option", pc.OptionID).Str("verifier", pc.Payment.Verifier).Msg("payment accepted")

			result, err := next(paywall.NewContext(ctx, pc), req)
			if err != nil {
				return nil, err
			}

			if result != nil {
				if result.Meta == nil {
					result.Meta = &mcp.Meta{}
				}
				if result.Meta.AdditionalFields == nil {
					result.Meta.AdditionalFields = make(map[string]any)
				}
				if _, ok := result.Meta.AdditionalFields[MetaPaymentResponse]; !ok {
					result.Meta.AdditionalFields[MetaPaymentResponse] = pc.Payment
				}
			}
			return result, nil
		}
	}
}
