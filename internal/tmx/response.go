package tmx

import (
	"encoding/json"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"
)

// Response field names read by the decision nodes.
const (
	FieldPolicyScore  = "policy_score"
	FieldReviewStatus = "review_status"
	FieldReasonCode   = "reason_code"
)

// Response is the JSON object returned by the risk service, kept verbatim.
// Fields are read lazily.
type Response struct {
	raw []byte
}

// ParseResponse accepts only a JSON object.
func ParseResponse(b []byte) (*Response, error) {
	if !gjson.ValidBytes(b) {
		return nil, errors.New("tmx: response is not valid JSON")
	}
	if !gjson.ParseBytes(b).IsObject() {
		return nil, errors.New("tmx: response is not a JSON object")
	}
	raw := make([]byte, len(b))
	copy(raw, b)
	return &Response{raw: raw}, nil
}

// Raw returns the response document.
func (r *Response) Raw() json.RawMessage {
	out := make(json.RawMessage, len(r.raw))
	copy(out, r.raw)
	return out
}

// Get reads a field by gjson path.
func (r *Response) Get(path string) gjson.Result {
	return gjson.GetBytes(r.raw, path)
}

// RequestID returns the request_id used to correlate a later update call.
func (r *Response) RequestID() (string, bool) {
	v := r.Get(FieldRequestID)
	if v.Type != gjson.String || v.Str == "" {
		return "", false
	}
	return v.Str, true
}

// PolicyScore parses policy_score. The service sends it as a string; an
// integral JSON number is accepted as well. Anything else is an error.
func (r *Response) PolicyScore() (int, error) {
	v := r.Get(FieldPolicyScore)
	var text string
	switch v.Type {
	case gjson.Null:
		return 0, errors.Wrap(ErrFieldMissing, FieldPolicyScore)
	case gjson.String:
		text = v.Str
	case gjson.Number:
		text = v.Raw
	default:
		return 0, errors.Wrapf(ErrFieldInvalid, "%s has type %s", FieldPolicyScore, v.Type)
	}

	score, err := strconv.Atoi(text)
	if err != nil {
		return 0, errors.Wrapf(ErrFieldInvalid, "%s %q is not an integer", FieldPolicyScore, text)
	}
	return score, nil
}

// ReviewStatus returns review_status exactly as sent.
func (r *Response) ReviewStatus() (string, error) {
	v := r.Get(FieldReviewStatus)
	switch {
	case v.Type == gjson.Null, v.Type == gjson.String && v.Str == "":
		return "", errors.Wrap(ErrFieldMissing, FieldReviewStatus)
	case v.Type != gjson.String:
		return "", errors.Wrapf(ErrFieldInvalid, "%s has type %s", FieldReviewStatus, v.Type)
	}
	return v.Str, nil
}

// ReasonCodes returns the triggered reason codes. present is false when the
// field is absent or null.
func (r *Response) ReasonCodes() (codes []string, present bool, err error) {
	v := r.Get(FieldReasonCode)
	if v.Type == gjson.Null {
		return nil, false, nil
	}
	if !v.IsArray() {
		return nil, true, errors.Wrapf(ErrFieldInvalid, "%s is not a list", FieldReasonCode)
	}
	for _, item := range v.Array() {
		if item.Type != gjson.String {
			return nil, true, errors.Wrapf(ErrFieldInvalid, "%s contains a %s", FieldReasonCode, item.Type)
		}
		codes = append(codes, item.Str)
	}
	return codes, true, nil
}
