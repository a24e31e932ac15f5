package branches

import (
	"regexp"
	"strings"

	"github.com/fixdesk/fixdesk/internal/shared"
)

var (
	gstinPattern     = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z][1-9A-Z]Z[0-9A-Z]$`)
	stateCodePattern = regexp.MustCompile(`^\d{2}$`)
	pincodePattern   = regexp.MustCompile(`^\d{6}$`)
)

func (s *Service) validate(b Branch) error {
	if strings.TrimSpace(b.Code) == "" {
		return shared.NewValidationError("code", "is required")
	}
	if strings.TrimSpace(b.Name) == "" {
		return shared.NewValidationError("name", "is required")
	}
	if !gstinPattern.MatchString(strings.ToUpper(b.GSTIN)) {
		return shared.NewValidationError("gstin", "must be a valid GSTIN")
	}
	if !stateCodePattern.MatchString(b.StateCode) {
		return shared.NewValidationError("state_code", "must be a 2-digit GST state code")
	}
	// The GSTIN's first two digits are the state code; they must agree.
	if b.GSTIN[:2] != b.StateCode {
		return shared.NewValidationError("state_code", "must match the GSTIN state prefix")
	}
	if b.Pincode != "" && !pincodePattern.MatchString(b.Pincode) {
		return shared.NewValidationError("pincode", "must be a 6-digit pincode")
	}
	if b.DefaultGSTRate.IsNegative() {
		return shared.NewValidationError("default_gst_rate", "must not be negative")
	}
	return nil
}
