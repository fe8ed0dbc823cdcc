package domain_test

import (
	"testing"

	"casa-control/internal/domain"
)

func TestParseArmLevel(t *testing.T) {
	cases := []struct {
		code string
		want domain.ArmLevel
		ok   bool
	}{
		{"0", domain.ArmNotReady, true},
		{"10", domain.ArmDisarmed, true},
		{"20", domain.ArmPerimeter, true},
		{"30", domain.ArmNight, true},
		{"40", domain.ArmTotal, true},
		{"50", domain.ArmNotReady, false},
		{"", domain.ArmNotReady, false},
	}

	for _, tc := range cases {
		got, ok := domain.ParseArmLevel(tc.code)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseArmLevel(%q): got (%v, %v), want (%v, %v)", tc.code, got, ok, tc.want, tc.ok)
		}
	}
}

func TestArmLevel_Armed(t *testing.T) {
	armed := []domain.ArmLevel{domain.ArmPerimeter, domain.ArmNight, domain.ArmTotal}
	for _, l := range armed {
		if !l.Armed() {
			t.Errorf("%v should count as armed", l)
		}
	}
	if domain.ArmDisarmed.Armed() || domain.ArmNotReady.Armed() {
		t.Error("disarmed and not-ready must not count as armed")
	}
}

func TestComfortProfile_WireCodes(t *testing.T) {
	// hub selectors number their positions 0, 10, 20...; the comfort
	// selector must follow the same convention as every other selector
	cases := []struct {
		profile domain.ComfortProfile
		code    string
	}{
		{domain.ProfileNormal, "0"},
		{domain.ProfileEconomy, "10"},
		{domain.ProfileVacation, "20"},
	}

	for _, tc := range cases {
		if got := tc.profile.Code(); got != tc.code {
			t.Errorf("%v wire code: got %q, want %q", tc.profile, got, tc.code)
		}
		got, ok := domain.ParseComfortProfile(tc.code)
		if !ok || got != tc.profile {
			t.Errorf("ParseComfortProfile(%q): got (%v, %v), want (%v, true)", tc.code, got, ok, tc.profile)
		}
	}

	if _, ok := domain.ParseComfortProfile("30"); ok {
		t.Error("30 is not a comfort selector position")
	}
}

func TestParseRemoteLevel(t *testing.T) {
	cases := []struct {
		code string
		want domain.RemoteLevel
		ok   bool
	}{
		{"0", domain.RemoteWaiting, true},
		{"10", domain.RemoteDisarm, true},
		{"20", domain.RemoteArmTotal, true},
		{"30", domain.RemoteWaiting, false},
		{"", domain.RemoteWaiting, false},
	}

	for _, tc := range cases {
		got, ok := domain.ParseRemoteLevel(tc.code)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseRemoteLevel(%q): got (%v, %v), want (%v, %v)", tc.code, got, ok, tc.want, tc.ok)
		}
	}
}

func TestArmLevel_CodeRoundTrip(t *testing.T) {
	for _, l := range []domain.ArmLevel{
		domain.ArmNotReady, domain.ArmDisarmed, domain.ArmPerimeter, domain.ArmNight, domain.ArmTotal,
	} {
		got, ok := domain.ParseArmLevel(l.Code())
		if !ok || got != l {
			t.Errorf("round trip through Code failed for %v", l)
		}
	}
}
