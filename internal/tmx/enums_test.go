package tmx

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEnumTablesAreComplete(t *testing.T) {
	assert.Len(t, serviceTypeWire, 7)
	assert.Len(t, eventTypeWire, 24)
	assert.Len(t, finalReviewStatusWire, 4)
	assert.Len(t, trustTagNameWire, 36)
	assert.Len(t, trustTagContextWire, 54)

	for name, table := range map[string][]string{
		"service": serviceTypeWire,
		"event":   eventTypeWire,
		"final":   finalReviewStatusWire,
		"tag":     trustTagNameWire,
		"context": trustTagContextWire,
	} {
		seen := map[string]bool{}
		for i, v := range table {
			assert.NotEmpty(t, v, "%s[%d] has no wire value", name, i)
			assert.False(t, seen[v], "%s wire value %q repeated", name, v)
			seen[v] = true
		}
	}
}

func TestZeroValuesAreDefaults(t *testing.T) {
	assert.Equal(t, "session-policy", ServiceType(0).String())
	assert.Equal(t, "LOGIN", EventType(0).String())
	assert.Equal(t, "pass", FinalReviewStatus(0).String())
	assert.Equal(t, "NONE", TrustTagName(0).String())
	assert.Equal(t, "NONE", TrustTagContext(0).String())
}

func TestWireValuesAreNotIdentifierNames(t *testing.T) {
	assert.Equal(t, "3ds", ServiceThreeDS.String())
	assert.Equal(t, "All", ServiceAll.String())
	assert.Equal(t, "_FRAUD_CONF", TagFraudConfirmed.String())
	assert.Equal(t, "_A_CAPCH", ContextCaptcha.String())
	assert.Equal(t, "_T_MITM", ContextThreatMITM.String())
	assert.Equal(t, "unknown", ServiceType(99).String())
}

func TestParse(t *testing.T) {
	st, err := ParseServiceType("did")
	require.NoError(t, err)
	assert.Equal(t, ServiceDID, st)

	et, err := ParseEventType("VERIFY_PAYMENT_INSTRUMENT")
	require.NoError(t, err)
	assert.Equal(t, EventVerifyPaymentInstrument, et)

	fr, err := ParseFinalReviewStatus("none")
	require.NoError(t, err)
	assert.Equal(t, FinalReviewNone, fr)

	_, err = ParseServiceType("ALL")
	assert.Error(t, err, "wire values are case-sensitive")
	_, err = ParseTrustTagName("LOGIN_PASSED")
	assert.Error(t, err)
}

func TestEnumsRoundTripEveryValue(t *testing.T) {
	for i := range trustTagContextWire {
		c := TrustTagContext(i)
		b, err := c.MarshalText()
		require.NoError(t, err)
		var back TrustTagContext
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, c, back, fmt.Sprintf("context %s", b))
	}
	for i := range trustTagNameWire {
		n := TrustTagName(i)
		back, err := ParseTrustTagName(n.String())
		require.NoError(t, err)
		assert.Equal(t, n, back)
	}
}

func TestEnumsDecodeFromYAML(t *testing.T) {
	var cfg struct {
		ServiceType ServiceType       `yaml:"service_type"`
		EventType   EventType         `yaml:"event_type"`
		Final       FinalReviewStatus `yaml:"final_review_status"`
		Tag         TrustTagName      `yaml:"tag"`
		Context     TrustTagContext   `yaml:"context"`
	}
	doc := "service_type: 3ds\nevent_type: PASSWORD_RESET\nfinal_review_status: reject\ntag: _LOCK\ncontext: _T_BOT\n"
	require.NoError(t, yaml.Unmarshal([]byte(doc), &cfg))
	assert.Equal(t, ServiceThreeDS, cfg.ServiceType)
	assert.Equal(t, EventPasswordReset, cfg.EventType)
	assert.Equal(t, FinalReviewReject, cfg.Final)
	assert.Equal(t, TagLock, cfg.Tag)
	assert.Equal(t, ContextThreatBot, cfg.Context)

	assert.Error(t, yaml.Unmarshal([]byte("service_type: bogus\n"), &cfg))
}
