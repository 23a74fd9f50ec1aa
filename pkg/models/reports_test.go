package models

import (
	"strings"
	"testing"
)

func TestFilterParamsValidate(t *testing.T) {
	valid := []FilterParams{
		{},
		{TimeRange: "day"},
		{TimeRange: "month", DriverFilter: "all"},
		{StartDate: "2026-08-01", EndDate: "2026-08-07"},
		{StartDate: "2026-08-01", EndDate: "2026-08-01"},
	}
	for _, f := range valid {
		if err := f.Validate(); err != nil {
			t.Fatalf("expected %+v to be valid, got %v", f, err)
		}
	}
}

func TestFilterParamsValidateRejectsMalformed(t *testing.T) {
	cases := []struct {
		filters FilterParams
		want    string
	}{
		{FilterParams{TimeRange: "quarter"}, "timeRange"},
		{FilterParams{StartDate: "not-a-date", EndDate: "2026-08-07"}, "startDate"},
		{FilterParams{StartDate: "2026-08-01", EndDate: "08/07/2026"}, "endDate"},
		{FilterParams{StartDate: "2026-08-07", EndDate: "2026-08-01"}, "after"},
		{FilterParams{StartDate: "2024-01-01", EndDate: "2026-08-01"}, "365"},
	}
	for _, tc := range cases {
		err := tc.filters.Validate()
		if err == nil {
			t.Fatalf("expected %+v to be rejected", tc.filters)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
		}
	}
}
