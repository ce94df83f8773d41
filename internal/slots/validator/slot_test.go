package validator

import (
	"errors"
	"testing"
	"vaxslot/pkg/logger"
	"vaxslot/pkg/model"
)

func newTestValidator() *SlotValidator {
	return NewSlotValidator(logger.New(logger.Config{
		Level:     "info",
		Format:    logger.JSON,
		AddSource: false,
		Service:   "test",
	}))
}

func validSlot() *model.Slot {
	return &model.Slot{
		VaccineID:       "65f0c0ffee0000000000aaaa",
		Date:            "2026-11-02",
		StartTime:       "09:00",
		EndTime:         "09:30",
		MaxAppointments: 10,
	}
}

func TestSlotValidator_Validate(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		mutate    func(s *model.Slot)
		wantField string
	}{
		{"valid", func(s *model.Slot) {}, ""},
		{"bad vaccine id", func(s *model.Slot) { s.VaccineID = "nope" }, "VaccineID"},
		{"bad date", func(s *model.Slot) { s.Date = "02/11/2026" }, "Date"},
		{"single digit hour", func(s *model.Slot) { s.StartTime = "9:00" }, "StartTime"},
		{"hour out of range", func(s *model.Slot) { s.EndTime = "24:10" }, "EndTime"},
		{"end before start", func(s *model.Slot) { s.EndTime = "08:45" }, "EndTime"},
		{"end equals start", func(s *model.Slot) { s.EndTime = "09:00" }, "EndTime"},
		{"zero capacity", func(s *model.Slot) { s.MaxAppointments = 0 }, "MaxAppointments"},
		{"capacity above limit", func(s *model.Slot) { s.MaxAppointments = 1001 }, "MaxAppointments"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSlot()
			tt.mutate(s)

			err := v.Validate(s)
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("Validate() error = %v, want ValidationErrors", err)
			}
			found := false
			for _, e := range verrs {
				if e.Field == tt.wantField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.wantField, verrs)
			}
		})
	}
}
