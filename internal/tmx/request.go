package tmx

import (
	"net/url"
	"sort"

	"github.com/cockroachdb/errors"
)

// Form field names shared by the query and update APIs.
const (
	FieldOrgID             = "org_id"
	FieldAPIKey            = "api_key"
	FieldSessionID         = "session_id"
	FieldServiceType       = "service_type"
	FieldEventType         = "event_type"
	FieldPolicy            = "policy"
	FieldRequestID         = "request_id"
	FieldAction            = "action"
	FieldFinalReviewStatus = "final_review_status"
	FieldNotes             = "notes"
	FieldTagName           = "tag_name"
	FieldTagContext        = "tag_context"
	FieldLineOfBusiness    = "line_of_business"
)

// FieldOutputFormat is set on the request URL by the client.
const FieldOutputFormat = "output_format"

var reservedQueryFields = map[string]bool{
	FieldOrgID:        true,
	FieldAPIKey:       true,
	FieldSessionID:    true,
	FieldServiceType:  true,
	FieldEventType:    true,
	FieldPolicy:       true,
	FieldOutputFormat: true,
}

// IsReservedQueryField reports whether name is set by the query itself and
// so cannot be supplied as an extra field.
func IsReservedQueryField(name string) bool {
	return reservedQueryFields[name]
}

// ActionUpdateReviewStatus is the fixed action of every update call.
const ActionUpdateReviewStatus = "update_review_status"

// ErrUnpairedTrustTag is returned when a trust tag name is set without a
// context.
var ErrUnpairedTrustTag = errors.New(
	"Trust Tag Name set to a value other than None, but Trust Tag Context is set to None. " +
		"Please set a value for Trust Tag Context")

// QueryRequest is a session query. It is built per call and never stored.
type QueryRequest struct {
	URL         string
	OrgID       string
	APIKey      Secret
	SessionID   string
	ServiceType ServiceType
	EventType   EventType
	Policy      string
	// Extra fields are appended after the fixed ones, sorted by name.
	// Reserved names are dropped.
	Extra map[string]string
}

// Form encodes the request body.
func (r *QueryRequest) Form() url.Values {
	form := url.Values{}
	form.Set(FieldOrgID, r.OrgID)
	form.Set(FieldAPIKey, r.APIKey.Reveal())
	form.Set(FieldSessionID, r.SessionID)
	form.Set(FieldServiceType, r.ServiceType.String())
	form.Set(FieldEventType, r.EventType.String())
	form.Set(FieldPolicy, r.Policy)

	names := make([]string, 0, len(r.Extra))
	for name := range r.Extra {
		if !IsReservedQueryField(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		form.Add(name, r.Extra[name])
	}
	return form
}

// UpdateRequest reports a final disposition for an earlier query.
type UpdateRequest struct {
	URL               string
	OrgID             string
	APIKey            Secret
	RequestID         string
	FinalReviewStatus FinalReviewStatus
	Notes             string
	TrustTagName      TrustTagName
	TrustTagContext   TrustTagContext
	LineOfBusiness    string
}

// Validate checks the trust tag pairing.
func (r *UpdateRequest) Validate() error {
	return ValidateTrustTag(r.TrustTagName, r.TrustTagContext)
}

// ValidateTrustTag rejects a tag name without a context. A context without
// a name is ignored rather than rejected, since nothing is sent for it.
func ValidateTrustTag(name TrustTagName, tagContext TrustTagContext) error {
	if name != TagNone && tagContext == ContextNone {
		return ErrUnpairedTrustTag
	}
	return nil
}

// Form encodes the request body. Optional fields are left out when unset.
func (r *UpdateRequest) Form() (url.Values, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set(FieldOrgID, r.OrgID)
	form.Set(FieldAPIKey, r.APIKey.Reveal())
	form.Set(FieldRequestID, r.RequestID)
	form.Set(FieldAction, ActionUpdateReviewStatus)
	if r.FinalReviewStatus != FinalReviewNone {
		form.Set(FieldFinalReviewStatus, r.FinalReviewStatus.String())
	}
	if r.Notes != "" {
		form.Set(FieldNotes, r.Notes)
	}
	if r.TrustTagName != TagNone {
		form.Set(FieldTagName, r.TrustTagName.String())
		form.Set(FieldTagContext, r.TrustTagContext.String())
	}
	if r.LineOfBusiness != "" {
		form.Set(FieldLineOfBusiness, r.LineOfBusiness)
	}
	return form, nil
}
