package paywall

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// PaymentContext is what a paid handler learns about the verified payment
type PaymentContext struct {
	Payment  *PaymentSuccessMetadata
	Headers  map[string]string
	OptionID string
	Result   *VerificationResult
}

// PaymentRequiredResponse is a ready-to-send terminal response for an unpaid request
type PaymentRequiredResponse struct {
	StatusCode int
	Header     http.Header
	Body       any
	Result     *VerificationResult
}

// Write sends the response as JSON
func (r *PaymentRequiredResponse) Write(w http.ResponseWriter) error {
	for k, vs := range r.Header {
		w.Header()[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(r.StatusCode)
	return json.NewEncoder(w).Encode(r.Body)
}

// PaymentRequiredBody is the JSON body of a 402 response
type PaymentRequiredBody struct {
	SchemaVersion int                 `json:"schemaVersion"`
	Message       string              `json:"message"`
	Resource      string              `json:"resource,omitempty"`
	Accepts       []PaymentOption     `json:"accepts"`
	Metadata      map[string]any      `json:"metadata,omitempty"`
	FallbackText  string              `json:"fallbackText,omitempty"`
	Error         *PaymentFailure     `json:"error,omitempty"`
	X402          *LegacyX402Response `json:"x402,omitempty"`
}

// NewPaymentRequiredResponse builds the default 402 response for a failed result.
// x402 options are mirrored in the legacy wallet-facing shape.
func NewPaymentRequiredResponse(def *Definition, result *VerificationResult) *PaymentRequiredResponse {
	body := PaymentRequiredBody{
		SchemaVersion: def.SchemaVersion,
		Message:       def.Message,
		Resource:      def.Resource,
		Accepts:       def.Accepts,
		Metadata:      def.Metadata,
		FallbackText:  def.FallbackText,
	}
	errMsg := def.Message
	if result != nil && result.Failure != nil {
		body.Error = result.Failure
		errMsg = result.Failure.Reason
	}
	if reqs := LegacyRequirements(def); len(reqs) > 0 {
		body.X402 = &LegacyX402Response{
			X402Version: X402Version,
			Error:       errMsg,
			Accepts:     reqs,
		}
	}
	return &PaymentRequiredResponse{
		StatusCode: http.StatusPaymentRequired,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       body,
		Result:     result,
	}
}

// FailureHandler turns a failed verification into a terminal response
type FailureHandler func(ctx context.Context, result *VerificationResult, def *Definition) *PaymentRequiredResponse

// Option configures RequirePayment and WithPaymentRequirement
type Option func(*requireOptions)

type requireOptions struct {
	settle    bool
	onFailure FailureHandler
}

// WithSettle asks the verifier to settle payments after verifying them
func WithSettle(settle bool) Option {
	return func(o *requireOptions) {
		o.settle = settle
	}
}

// WithFailureHandler replaces the default 402 response
func WithFailureHandler(h FailureHandler) Option {
	return func(o *requireOptions) {
		o.onFailure = h
	}
}

// RequirePayment verifies the payment carried by h. Exactly one of the returned
// values is non-nil: the payment context on success, or the response to send.
func RequirePayment(ctx context.Context, h http.Header, p *Payment, opts ...Option) (*PaymentContext, *PaymentRequiredResponse) {
	var o requireOptions
	for _, opt := range opts {
		opt(&o)
	}

	result := p.Verify(ctx, h, VerifyOptions{Settle: o.settle})
	if !result.Success {
		if o.onFailure != nil {
			if resp := o.onFailure(ctx, result, p.Definition()); resp != nil {
				if resp.Result == nil {
					resp.Result = result
				}
				return nil, resp
			}
		}
		return nil, NewPaymentRequiredResponse(p.definition, result)
	}

	headers := make(map[string]string, len(result.Headers)+1)
	for k, v := range result.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	if _, ok := headers[http.CanonicalHeaderKey(HeaderPaymentResponse)]; !ok {
		if encoded, err := EncodePaymentResponse(result.Metadata); err == nil {
			headers[http.CanonicalHeaderKey(HeaderPaymentResponse)] = encoded
		}
	}

	return &PaymentContext{
		Payment:  result.Metadata,
		Headers:  headers,
		OptionID: result.OptionID,
		Result:   result,
	}, nil
}

type paymentContextKey struct{}

// NewContext returns a copy of ctx carrying pc
func NewContext(ctx context.Context, pc *PaymentContext) context.Context {
	return context.WithValue(ctx, paymentContextKey{}, pc)
}

// FromContext returns the payment context stored in ctx
func FromContext(ctx context.Context) (*PaymentContext, bool) {
	pc, ok := ctx.Value(paymentContextKey{}).(*PaymentContext)
	return pc, ok
}

// WithPaymentRequirement gates next behind payment. next never runs for unpaid
// requests; paid requests see the PaymentContext through FromContext and their
// response gets the verifier's headers unless next set them itself.
func WithPaymentRequirement(next http.Handler, p *Payment, opts ...Option) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		log := p.logger.With().Str("request_id", requestID).Str("path", r.URL.Path).Logger()

		pc, required := RequirePayment(r.Context(), r.Header, p, opts...)
		if required != nil {
			log.Debug().Str("code", failureCode(required.Result)).Msg("payment required")
			if err := required.Write(w); err != nil {
				log.Error().Err(err).Msg("write payment required response")
			}
			return
		}
		log.Debug().Str("option", pc.OptionID).Str("verifier", pc.Payment.Verifier).Msg("payment accepted")

		mw := &headerMergeWriter{ResponseWriter: w, headers: pc.Headers}
		next.ServeHTTP(mw, r.WithContext(NewContext(r.Context(), pc)))
		mw.merge()
	})
}

// PaidHandlerFunc is a handler receiving the verified payment explicitly
type PaidHandlerFunc func(w http.ResponseWriter, r *http.Request, pc *PaymentContext)

// HandlePaid is WithPaymentRequirement for handlers taking the payment context as a parameter
func HandlePaid(fn PaidHandlerFunc, p *Payment, opts ...Option) http.Handler {
	return WithPaymentRequirement(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pc, _ := FromContext(r.Context())
		fn(w, r, pc)
	}), p, opts...)
}

// MergeHeaders sets each header on dst unless dst already has a value for it
func MergeHeaders(dst http.Header, headers map[string]string) {
	for k, v := range headers {
		if len(dst.Values(k)) == 0 {
			dst.Set(k, v)
		}
	}
}

func failureCode(result *VerificationResult) string {
	if result == nil || result.Failure == nil {
		return ""
	}
	return string(result.Failure.Code)
}

// headerMergeWriter adds payment headers right before the response head is sent
type headerMergeWriter struct {
	http.ResponseWriter
	headers map[string]string
	merged  bool
}

func (w *headerMergeWriter) merge() {
	if w.merged {
		return
	}
	w.merged = true
	MergeHeaders(w.ResponseWriter.Header(), w.headers)
}

func (w *headerMergeWriter) WriteHeader(statusCode int) {
	w.merge()
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *headerMergeWriter) Write(b []byte) (int, error) {
	w.merge()
	return w.ResponseWriter.Write(b)
}

func (w *headerMergeWriter) Flush() {
	w.merge()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *headerMergeWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
