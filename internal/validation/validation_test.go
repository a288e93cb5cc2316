package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/tmxauth/internal/idgen"
)

func TestIsValidJourneyName(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
	}{
		{"login", true},
		{"step-up_2", true},
		{"0login", true},

		{"", false},
		{"Login", false},
		{"-login", false},
		{"log in", false},
		{strings.Repeat("a", 65), false},
	}

	for _, tc := range tests {
		if got := IsValidJourneyName(tc.name); got != tc.valid {
			t.Errorf("IsValidJourneyName(%q) = %v, want %v", tc.name, got, tc.valid)
		}
	}
}

func TestIsValidAttemptID(t *testing.T) {
	if !IsValidAttemptID(idgen.WithPrefix(idgen.AttemptPrefix)) {
		t.Error("engine-shaped id rejected")
	}
	if IsValidAttemptID("att_../../etc") {
		t.Error("path-like id accepted")
	}
}

func TestValidate(t *testing.T) {
	errs := Validate(
		Required("type", "HiddenValueCallback"),
		MaxLength("value", "abc", MaxCallbackValueLength),
		NoControlChars("value", "abc"),
	)
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}

	errs = Validate(
		Required("type", " "),
		MaxLength("value", strings.Repeat("x", MaxCallbackValueLength+1), MaxCallbackValueLength),
		NoControlChars("value", "a\nb"),
	)
	if len(errs) != 3 {
		t.Fatalf("Expected 3 errors, got %d", len(errs))
	}
	if errs.Error() != "type: is required" {
		t.Errorf("Error() = %q", errs.Error())
	}
}

func TestParamMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/attempts/:id", ParamMiddleware("id", IsValidAttemptID, "bad id"), func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attempts/nope", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "invalid_id") {
		t.Errorf("body = %s", w.Body.String())
	}

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/attempts/"+idgen.WithPrefix(idgen.AttemptPrefix), nil))
	if w.Code != http.StatusOK {
		t.Errorf("valid id: status = %d, want 200", w.Code)
	}
}

func TestRequestSizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RequestSizeMiddleware(8))
	router.POST("/", func(c *gin.Context) {
		var body map[string]any
		if err := c.ShouldBindJSON(&body); err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"k":"a long value"}`)))
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d, want 413", w.Code)
	}
}
