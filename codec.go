package paywall

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const x402HeaderSchema = `{
	"type": "object",
	"required": ["x402Version", "scheme", "network", "payload"],
	"properties": {
		"x402Version": {"type": "integer", "minimum": 1},
		"scheme": {"type": "string", "minLength": 1},
		"network": {"type": "string", "minLength": 1},
		"payload": {"type": "object"},
		"correlationId": {"type": "string"}
	}
}`

const directPayloadSchema = `{
	"type": "object",
	"required": ["optionId", "payload"],
	"properties": {
		"schemaVersion": {"type": "integer"},
		"optionId": {"type": "string", "minLength": 1},
		"proofType": {"type": "string"},
		"payload": {"type": "object"},
		"metadata": {"type": "object"}
	}
}`

var (
	x402Schema   = mustSchema(x402HeaderSchema)
	directSchema = mustSchema(directPayloadSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("compile header schema: %v", err))
	}
	return schema
}

// EncodeX402Header encodes an x402 payment header value
func EncodeX402Header(h *X402PaymentHeader) (string, error) {
	return EncodeHeaderValue(h)
}

// DecodeX402Header decodes an X-PAYMENT header value. Standard and URL-safe
// base64 are both accepted.
func DecodeX402Header(value string) (*X402PaymentHeader, *PaymentFailure) {
	var h X402PaymentHeader
	if f := decodeHeader(HeaderX402, value, x402Schema, &h); f != nil {
		return nil, f
	}
	return &h, nil
}

// EncodeDirectHeader encodes a direct proof header value
func EncodeDirectHeader(p *DirectPaymentPayload) (string, error) {
	if p.SchemaVersion == 0 {
		cp := *p
		cp.SchemaVersion = SchemaVersion
		p = &cp
	}
	return EncodeHeaderValue(p)
}

// DecodeDirectHeader decodes an X-PAYMENT-PROOF header value
func DecodeDirectHeader(value string) (*DirectPaymentPayload, *PaymentFailure) {
	var p DirectPaymentPayload
	if f := decodeHeader(HeaderDirect, value, directSchema, &p); f != nil {
		return nil, f
	}
	return &p, nil
}

// EncodePaymentResponse encodes success metadata for the X-PAYMENT-RESPONSE header
func EncodePaymentResponse(meta *PaymentSuccessMetadata) (string, error) {
	return EncodeHeaderValue(meta)
}

// DecodePaymentResponse decodes an X-PAYMENT-RESPONSE header value
func DecodePaymentResponse(value string) (*PaymentSuccessMetadata, error) {
	data, err := decodeBase64(value)
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	var meta PaymentSuccessMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal payment response: %w", err)
	}
	return &meta, nil
}

// EncodeHeaderValue serializes v as JSON and encodes it with standard base64
func EncodeHeaderValue(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal header: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func decodeHeader(name, value string, schema *gojsonschema.Schema, out any) *PaymentFailure {
	data, err := decodeBase64(value)
	if err != nil {
		return invalidPayload(name, "header is not valid base64", err.Error())
	}
	if !json.Valid(data) {
		return invalidPayload(name, "header is not valid JSON", nil)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return invalidPayload(name, "header could not be validated", err.Error())
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return invalidPayload(name, "header does not match schema", problems)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return invalidPayload(name, "header has unexpected field types", err.Error())
	}
	return nil
}

func invalidPayload(header, reason string, detail any) *PaymentFailure {
	f := NewFailure(CodeInvalidPayload, fmt.Sprintf("%s %s", header, reason), false)
	f.Detail = detail
	return f
}

// decodeBase64 accepts standard or URL-safe base64, padded or not
func decodeBase64(value string) ([]byte, error) {
	s := strings.TrimSpace(value)
	if strings.ContainsAny(s, "-_") {
		s = strings.NewReplacer("-", "+", "_", "/").Replace(s)
	}
	s = strings.TrimRight(s, "=")
	return base64.RawStdEncoding.DecodeString(s)
}
