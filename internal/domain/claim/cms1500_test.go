package claim

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestRenderCMS1500(t *testing.T) {
	payer := "Aetna"
	charge := 425.00
	dos := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	c := &Claim{
		ID:                uuid.New(),
		Status:            StatusSubmitted,
		PayerName:         &payer,
		TotalChargeAmount: &charge,
		DateOfService:     &dos,
		ServiceLines: []*ServiceLine{
			{LineNumber: 1, CPTCode: "29881", ICD10Codes: []string{"S83.241A"}, Units: 1, ChargeAmount: &charge},
		},
	}

	out := RenderCMS1500(c, CMS1500Input{PatientName: "Jane Doe"})

	for _, want := range []string{"Aetna", "Jane Doe", "06/02/2025", "29881", "S83.241A", "425.00"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected rendered form to contain %q", want)
		}
	}
}
