package tmx

import (
	"github.com/cockroachdb/errors"
)

// Each enum below is an integer tag with an explicit wire table. The zero
// value of every enum is the default the remote service documents, so a
// zero-valued config behaves like an unconfigured one.

func parseEnum[T ~int](kind string, table []string, v string) (T, error) {
	for i, s := range table {
		if s == v {
			return T(i), nil
		}
	}
	return 0, errors.Newf("tmx: unknown %s %q", kind, v)
}

func enumString[T ~int](table []string, v T) string {
	if int(v) < 0 || int(v) >= len(table) {
		return "unknown"
	}
	return table[v]
}

// ServiceType restricts which output fields the service returns. It is tied
// to the API key and checked on every call.
type ServiceType int

const (
	ServiceSessionPolicy ServiceType = iota // IP and device attributes plus policy details
	ServiceDevice                           // device attributes only
	ServiceDID                              // device identifier only
	ServiceIP                               // IP attributes only
	ServiceSession                          // device attributes, no IP or policy
	ServiceAll
	ServiceThreeDS
)

var serviceTypeWire = []string{
	ServiceSessionPolicy: "session-policy",
	ServiceDevice:        "device",
	ServiceDID:           "did",
	ServiceIP:            "ip",
	ServiceSession:       "session",
	ServiceAll:           "All",
	ServiceThreeDS:       "3ds",
}

func (s ServiceType) String() string { return enumString(serviceTypeWire, s) }

// ParseServiceType maps a wire string to a ServiceType.
func ParseServiceType(v string) (ServiceType, error) {
	return parseEnum[ServiceType]("service type", serviceTypeWire, v)
}

func (s ServiceType) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *ServiceType) UnmarshalText(b []byte) error {
	v, err := ParseServiceType(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// EventType is the kind of transaction being scored.
type EventType int

const (
	EventLogin EventType = iota
	EventPayment
	EventAccountCreation
	EventTransfer
	EventTransactionOther
	EventAuctionBid
	EventDetailsChange
	EventAddListing
	EventAccountBalance
	EventTransactionHistory
	EventDigitalDownload
	EventDigitalStream
	EventFailedLogin
	EventDeposit
	EventLoanAcceptance
	EventCustomEventType
	EventDeviceRegistration
	EventAuthToken
	EventPasswordReset
	EventInitAuth
	EventPreAuthentication
	EventAddPaymentInstrument
	EventManagePaymentInstrument
	EventVerifyPaymentInstrument
)

var eventTypeWire = []string{
	EventLogin:                   "LOGIN",
	EventPayment:                 "PAYMENT",
	EventAccountCreation:         "ACCOUNT_CREATION",
	EventTransfer:                "TRANSFER",
	EventTransactionOther:        "TRANSACTION_OTHER",
	EventAuctionBid:              "AUCTION_BID",
	EventDetailsChange:           "DETAILS_CHANGE",
	EventAddListing:              "ADD_LISTING",
	EventAccountBalance:          "ACCOUNT_BALANCE",
	EventTransactionHistory:      "TRANSACTION_HISTORY",
	EventDigitalDownload:         "DIGITAL_DOWNLOAD",
	EventDigitalStream:           "DIGITAL_STREAM",
	EventFailedLogin:             "FAILED_LOGIN",
	EventDeposit:                 "DEPOSIT",
	EventLoanAcceptance:          "LOAN_ACCEPTANCE",
	EventCustomEventType:         "CUSTOM_EVENT_TYPE",
	EventDeviceRegistration:      "DEVICE_REGISTRATION",
	EventAuthToken:               "AUTH_TOKEN",
	EventPasswordReset:           "PASSWORD_RESET",
	EventInitAuth:                "INIT_AUTH",
	EventPreAuthentication:       "PRE_AUTHENTICATION",
	EventAddPaymentInstrument:    "ADD_PAYMENT_INSTRUMENT",
	EventManagePaymentInstrument: "MANAGE_PAYMENT_INSTRUMENT",
	EventVerifyPaymentInstrument: "VERIFY_PAYMENT_INSTRUMENT",
}

func (e EventType) String() string { return enumString(eventTypeWire, e) }

// ParseEventType maps a wire string to an EventType.
func ParseEventType(v string) (EventType, error) {
	return parseEnum[EventType]("event type", eventTypeWire, v)
}

func (e EventType) MarshalText() ([]byte, error) { return []byte(e.String()), nil }

func (e *EventType) UnmarshalText(b []byte) error {
	v, err := ParseEventType(string(b))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// FinalReviewStatus is the disposition reported back by an update call.
// FinalReviewNone means the field is left out of the request.
type FinalReviewStatus int

const (
	FinalReviewPass FinalReviewStatus = iota
	FinalReviewNone
	FinalReviewReview
	FinalReviewReject
)

var finalReviewStatusWire = []string{
	FinalReviewPass:   "pass",
	FinalReviewNone:   "none",
	FinalReviewReview: "review",
	FinalReviewReject: "reject",
}

func (f FinalReviewStatus) String() string { return enumString(finalReviewStatusWire, f) }

// ParseFinalReviewStatus maps a wire string to a FinalReviewStatus.
func ParseFinalReviewStatus(v string) (FinalReviewStatus, error) {
	return parseEnum[FinalReviewStatus]("final review status", finalReviewStatusWire, v)
}

func (f FinalReviewStatus) MarshalText() ([]byte, error) { return []byte(f.String()), nil }

func (f *FinalReviewStatus) UnmarshalText(b []byte) error {
	v, err := ParseFinalReviewStatus(string(b))
	if err != nil {
		return err
	}
	*f = v
	return nil
}

// TrustTagName is one of the service's global trust tags.
type TrustTagName int

const (
	TagNone TrustTagName = iota
	TagLoginPassed
	TagLoginFailed
	TagAuthPassed
	TagAuthFailed
	TagAccepted
	TagRejected
	TagFalsePositive
	TagFalseNegative
	TagReviewed
	TagReviewPassed
	TagReviewFailed
	TagChallenged
	TagChallengeFailed
	TagChallengePassed
	TagFraudPayment
	TagFraudIdentity
	TagFraudBreach
	TagFraudMoneyLaundering
	TagFraudMoneyTransfer
	TagFraudInternal
	TagFraudMOTO
	TagWatch
	TagCompromised
	TagTrusted
	TagPrivileged
	TagThreat
	TagLock
	TagSelfExcluded
	TagFraudConfirmed
	TagFraudProbable
	TagTrustedConfirmed
	TagTrustedProbable
	TagLoanApplication
	TagLoanFunded
	TagLoanDeposit
)

var trustTagNameWire = []string{
	TagNone:                 "NONE",
	TagLoginPassed:          "_LOGIN_PASSED",
	TagLoginFailed:          "_LOGIN_FAILED",
	TagAuthPassed:           "_AUTH_PASSED",
	TagAuthFailed:           "_AUTH_FAILED",
	TagAccepted:             "_ACCEPTED",
	TagRejected:             "_REJECTED",
	TagFalsePositive:        "_FALSE_POSITIVE",
	TagFalseNegative:        "_FALSE_NEGATIVE",
	TagReviewed:             "_REVIEWED",
	TagReviewPassed:         "_REVIEW_PASSED",
	TagReviewFailed:         "_REVIEW_FAILED",
	TagChallenged:           "_CHALLENGED",
	TagChallengeFailed:      "_CHALLENGE_FAILED",
	TagChallengePassed:      "_CHALLENGE_PASSED",
	TagFraudPayment:         "_FRAUD_PAYMENT",
	TagFraudIdentity:        "_FRAUD_IDENTITY",
	TagFraudBreach:          "_FRAUD_BREACH",
	TagFraudMoneyLaundering: "_FRAUD_MONEY_LAUNDERING",
	TagFraudMoneyTransfer:   "_FRAUD_MONEY_TRANSFER",
	TagFraudInternal:        "_FRAUD_INTERNAL",
	TagFraudMOTO:            "_FRAUD_MOTO",
	TagWatch:                "_WATCH",
	TagCompromised:          "_COMPROMISED",
	TagTrusted:              "_TRUSTED",
	TagPrivileged:           "_PRIVILEGED",
	TagThreat:               "_THREAT",
	TagLock:                 "_LOCK",
	TagSelfExcluded:         "_SELF_EXCLUDED",
	TagFraudConfirmed:       "_FRAUD_CONF",
	TagFraudProbable:        "_FRAUD_PROB",
	TagTrustedConfirmed:     "_TRUSTED_CONF",
	TagTrustedProbable:      "_TRUSTED_PROB",
	TagLoanApplication:      "_LOAN_APP",
	TagLoanFunded:           "_LOAN_FUND",
	TagLoanDeposit:          "_LOAN_DEPOSIT",
}

func (t TrustTagName) String() string { return enumString(trustTagNameWire, t) }

// ParseTrustTagName maps a wire string to a TrustTagName.
func ParseTrustTagName(v string) (TrustTagName, error) {
	return parseEnum[TrustTagName]("trust tag name", trustTagNameWire, v)
}

func (t TrustTagName) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TrustTagName) UnmarshalText(b []byte) error {
	v, err := ParseTrustTagName(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// TrustTagContext qualifies a trust tag. It is mandatory whenever a tag name
// is sent.
type TrustTagContext int

const (
	ContextNone TrustTagContext = iota
	// authentication methods
	ContextCaptcha
	ContextUserPassword
	ContextBank
	ContextSMS
	ContextVoice
	ContextOTPSoft
	ContextOTPHard
	ContextKBAManual
	ContextKBAAutoVerified
	ContextKBAMixed
	ContextBiometricVoice
	ContextBiometricFace
	ContextBiometric
	ContextDocument
	ContextEmail
	ContextAddress
	ContextCell
	ContextIDVerification
	ContextAnalysis
	ContextPayment
	ContextSocial
	ContextGeo
	// industries
	ContextIndustryBank
	ContextIndustryBrokerage
	ContextIndustryNBFI
	ContextIndustryTelco
	ContextIndustryUtility
	ContextIndustryReseller
	ContextIndustrySocial
	ContextIndustryTravel
	ContextIndustryAccommodation
	ContextIndustryGaming
	ContextIndustryDigital
	ContextIndustryAuction
	ContextIndustryClassified
	ContextIndustryMarketplace
	ContextIndustryAccounting
	ContextIndustryLegal
	ContextIndustryHealth
	ContextIndustrySaaS
	ContextIndustryGovernment
	ContextIndustryEducation
	// payment instruments
	ContextPaymentAddress
	ContextPaymentCard
	ContextPaymentFunds
	// threats
	ContextThreatTor
	ContextThreatBot
	ContextThreatIPAddress
	ContextThreatGeoSpoof
	ContextThreatIDSpoof
	ContextThreatDeviceIDSpoof
	ContextThreatMalware
	ContextThreatMITM
)

var trustTagContextWire = []string{
	ContextNone:                  "NONE",
	ContextCaptcha:               "_A_CAPCH",
	ContextUserPassword:          "_A_URPWD",
	ContextBank:                  "_A_BANK",
	ContextSMS:                   "_A_SMS",
	ContextVoice:                 "_A_VOICE",
	ContextOTPSoft:               "_A_OTPS",
	ContextOTPHard:               "_A_OTPH",
	ContextKBAManual:             "_A_KBAMN",
	ContextKBAAutoVerified:       "_A_KBAAV",
	ContextKBAMixed:              "_A_KBAMX",
	ContextBiometricVoice:        "_A_BIOV",
	ContextBiometricFace:         "_A_BIOF",
	ContextBiometric:             "_A_BIO",
	ContextDocument:              "_A_DOCUM",
	ContextEmail:                 "_A_EMAIL",
	ContextAddress:               "_A_ADDRS",
	ContextCell:                  "_A_CELL",
	ContextIDVerification:        "_A_IDVER",
	ContextAnalysis:              "_A_ANLYS",
	ContextPayment:               "_A_PAYMT",
	ContextSocial:                "_A_SOC",
	ContextGeo:                   "_A_GEO",
	ContextIndustryBank:          "_I_BANK",
	ContextIndustryBrokerage:     "_I_BROK",
	ContextIndustryNBFI:          "_I_NBFI",
	ContextIndustryTelco:         "_I_TELC",
	ContextIndustryUtility:       "_I_UTIL",
	ContextIndustryReseller:      "_I_RESO",
	ContextIndustrySocial:        "_I_SOCL",
	ContextIndustryTravel:        "_I_TRVL",
	ContextIndustryAccommodation: "_I_ACCOM",
	ContextIndustryGaming:        "_I_GAME",
	ContextIndustryDigital:       "_I_DIGT",
	ContextIndustryAuction:       "_I_AUCT",
	ContextIndustryClassified:    "_I_CLSFD",
	ContextIndustryMarketplace:   "_I_MRKT",
	ContextIndustryAccounting:    "_I_ACCT",
	ContextIndustryLegal:         "_I_LEGAL",
	ContextIndustryHealth:        "_I_HLTH",
	ContextIndustrySaaS:          "_I_SAAS",
	ContextIndustryGovernment:    "_I_GOV",
	ContextIndustryEducation:     "_I_EDU",
	ContextPaymentAddress:        "_P_ADDR",
	ContextPaymentCard:           "_P_CARD",
	ContextPaymentFunds:          "_P_FUNDS",
	ContextThreatTor:             "_T_TOR",
	ContextThreatBot:             "_T_BOT",
	ContextThreatIPAddress:       "_T_IPADD",
	ContextThreatGeoSpoof:        "_T_GEOSP",
	ContextThreatIDSpoof:         "_T_IDSPF",
	ContextThreatDeviceIDSpoof:   "_T_DIDSP",
	ContextThreatMalware:         "_T_MALW",
	ContextThreatMITM:            "_T_MITM",
}

func (c TrustTagContext) String() string { return enumString(trustTagContextWire, c) }

// ParseTrustTagContext maps a wire string to a TrustTagContext.
func ParseTrustTagContext(v string) (TrustTagContext, error) {
	return parseEnum[TrustTagContext]("trust tag context", trustTagContextWire, v)
}

func (c TrustTagContext) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *TrustTagContext) UnmarshalText(b []byte) error {
	v, err := ParseTrustTagContext(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}
