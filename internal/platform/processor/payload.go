package processor

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// Field names the gateway uses in its callback payloads. The payload itself
// is an open set: anything beyond these is carried through verbatim.
const (
	// FieldOrder echoes the merchant matching key from the outbound request.
	FieldOrder = "ORDER"
	// FieldResponseCode is the numeric result code of the charge attempt.
	FieldResponseCode = "RC"
	// FieldTransactionID is the gateway-assigned transaction reference.
	FieldTransactionID = "RRN"
	FieldAmount        = "AMOUNT"
	FieldCurrency      = "CURRENCY"
	FieldSignature     = "P_SIGN"
	FieldApproval      = "APPROVAL"
	FieldTRType        = "TRTYPE"
	FieldTimestamp     = "TIMESTAMP"
	// FieldSubscriptionAccount identifies the recurring account; used as a
	// correlation fallback when ORDER is absent.
	FieldSubscriptionAccount = "SUBSC_ID"
)

// Payload is one callback's field set with names preserved verbatim.
type Payload map[string]string

func (p Payload) Get(key string) string { return p[key] }

func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok && p[key] != ""
}

func (p Payload) MatchingKey() string         { return p[FieldOrder] }
func (p Payload) SubscriptionAccount() string { return p[FieldSubscriptionAccount] }
func (p Payload) Signature() string           { return p[FieldSignature] }
func (p Payload) TransactionID() string       { return p[FieldTransactionID] }

// CorrelationRef returns the best available identifier for logging and
// audit keying: the gateway transaction id when present, the matching key
// otherwise.
func (p Payload) CorrelationRef() string {
	if p.Has(FieldTransactionID) {
		return p[FieldTransactionID]
	}
	return p[FieldOrder]
}

// JSON serializes the payload for jsonb storage.
func (p Payload) JSON() []byte {
	b, err := json.Marshal(p)
	if err != nil {
		return []byte("{}")
	}
	return b
}

// FromForm flattens form values into a Payload, first value wins.
func FromForm(values url.Values) Payload {
	p := make(Payload, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			p[k] = vs[0]
		}
	}
	return p
}

// FromJSON decodes a JSON object body into a Payload. Scalar values are
// stringified; nested structures are kept as their compact JSON encoding so
// no field is dropped.
func FromJSON(body []byte) (Payload, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode notification body: %w", err)
	}
	p := make(Payload, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			p[k] = t
		case float64:
			// preserve integers without a trailing ".0"
			if t == float64(int64(t)) {
				p[k] = fmt.Sprintf("%d", int64(t))
			} else {
				p[k] = fmt.Sprintf("%v", t)
			}
		case bool:
			p[k] = fmt.Sprintf("%t", t)
		case nil:
			p[k] = ""
		default:
			if b, err := json.Marshal(v); err == nil {
				p[k] = string(b)
			}
		}
	}
	return p, nil
}
