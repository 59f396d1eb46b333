package detector

import (
	"testing"
	"time"

	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/abelzeko/river-alert/internal/normalize"
	"github.com/google/go-cmp/cmp"
)

var (
	bkk      = time.FixedZone("ICT", 7*60*60)
	observed = time.Date(2025, time.October, 15, 14, 0, 0, 0, bkk)
	now      = time.Date(2025, time.October, 15, 14, 5, 0, 0, bkk)
)

func float(v float64) *float64 { return &v }

func reading(t *testing.T, level float64, bank *float64, status string) entities.Reading {
	t.Helper()
	r, err := entities.NewReading("inburi", "อินทร์บุรี", level, bank, status,
		normalize.ClassifyStatus(status), observed, entities.KindStaticHTML)
	if err != nil {
		t.Fatalf("NewReading failed: %v", err)
	}
	return r
}

func stateOf(t *testing.T, level float64, bank *float64, status string) *entities.StoredState {
	t.Helper()
	st := entities.StateFromReading(reading(t, level, bank, status))
	return &st
}

func TestFirstRun(t *testing.T) {
	current := reading(t, 3.0, float(6.0), "ปกติ")

	dec := New(DefaultPolicy()).Evaluate(current, nil, now)
	if dec.Alert {
		t.Errorf("Expected NO_ALERT on first run with FirstRunAlerts=false, got %+v", dec)
	}
	if !dec.FirstRun {
		t.Error("Expected FirstRun flag")
	}

	policy := DefaultPolicy()
	policy.FirstRunAlerts = true
	dec = New(policy).Evaluate(current, nil, now)
	if !dec.Alert {
		t.Fatalf("Expected ALERT on first run with FirstRunAlerts=true")
	}
	if diff := cmp.Diff([]string{"first observation"}, dec.Reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestFirstRunNearAndAboveBank(t *testing.T) {
	d := New(DefaultPolicy())

	near := d.Evaluate(reading(t, 5.65, float(6.0), "ปกติ"), nil, now)
	if near.Alert || len(near.Reasons) != 0 {
		t.Errorf("Expected NO_ALERT for a near-bank first run, got %+v", near)
	}

	above := d.Evaluate(reading(t, 6.05, float(6.0), "ปกติ"), nil, now)
	if !above.Alert || !above.Has(RuleAboveBank) {
		t.Errorf("Expected above-bank ALERT on first run, got %+v", above)
	}
}

func TestMagnitudeBoundary(t *testing.T) {
	d := New(DefaultPolicy())

	dec := d.Evaluate(reading(t, 5.50, nil, ""), stateOf(t, 5.40, nil, ""), now)
	if !dec.Alert || !dec.Has(RuleMagnitude) {
		t.Errorf("Expected a delta of exactly 0.10 to alert, got %+v", dec)
	}

	dec = d.Evaluate(reading(t, 5.4999999, nil, ""), stateOf(t, 5.40, nil, ""), now)
	if dec.Alert || dec.Has(RuleMagnitude) {
		t.Errorf("Expected a delta of 0.0999999 not to alert, got %+v", dec)
	}

	dec = d.Evaluate(reading(t, 5.30, nil, ""), stateOf(t, 5.40, nil, ""), now)
	if !dec.Alert {
		t.Errorf("Expected a falling delta of 0.10 to alert, got %+v", dec)
	}
	if diff := cmp.Diff([]string{"magnitude change -0.10m"}, dec.Reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestRiseNearBank(t *testing.T) {
	dec := New(DefaultPolicy()).Evaluate(reading(t, 5.65, float(6.00), "ปกติ"), stateOf(t, 5.40, float(6.00), "ปกติ"), now)
	if !dec.Alert {
		t.Fatalf("Expected ALERT, got %+v", dec)
	}
	want := []string{"magnitude change +0.25m", "near bank (0.35m)"}
	if diff := cmp.Diff(want, dec.Reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}
}

func TestStatusEscalation(t *testing.T) {
	dec := New(DefaultPolicy()).Evaluate(reading(t, 4.00, nil, "เฝ้าระวัง"), stateOf(t, 4.00, nil, "ปกติ"), now)
	if !dec.Alert {
		t.Fatalf("Expected ALERT, got %+v", dec)
	}
	if diff := cmp.Diff([]string{"status escalation NORMAL→WARNING"}, dec.Reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}

	dec = New(DefaultPolicy()).Evaluate(reading(t, 4.00, nil, "ปกติ"), stateOf(t, 4.00, nil, "เฝ้าระวัง"), now)
	if dec.Alert {
		t.Errorf("Expected de-escalation not to alert, got %+v", dec)
	}
}

func TestCooldownSuppressesRepeat(t *testing.T) {
	d := New(DefaultPolicy())
	current := reading(t, 5.65, float(6.00), "")
	prev := stateOf(t, 5.65, float(6.00), "")

	first := d.Evaluate(current, prev, now)
	if !first.Alert || first.Fingerprint == "" {
		t.Fatalf("Expected near-bank ALERT, got %+v", first)
	}

	alerted := prev.WithAlert(now.Add(-time.Hour), first.Fingerprint)
	dec := d.Evaluate(current, &alerted, now)
	if dec.Alert || !dec.Suppressed {
		t.Errorf("Expected suppression inside cooldown, got %+v", dec)
	}

	expired := prev.WithAlert(now.Add(-7*time.Hour), first.Fingerprint)
	dec = d.Evaluate(current, &expired, now)
	if !dec.Alert {
		t.Errorf("Expected ALERT after cooldown expired, got %+v", dec)
	}

	other := prev.WithAlert(now.Add(-time.Hour), "0000000000000000")
	dec = d.Evaluate(current, &other, now)
	if !dec.Alert {
		t.Errorf("Expected ALERT for a different fingerprint, got %+v", dec)
	}
}

func TestOverflowIgnoresCooldown(t *testing.T) {
	d := New(DefaultPolicy())
	current := reading(t, 6.05, float(6.00), "ล้นตลิ่ง")
	if *current.DistanceToBankM != -0.05 {
		t.Fatalf("Expected distance -0.05, got %v", *current.DistanceToBankM)
	}
	prev := stateOf(t, 6.05, float(6.00), "ล้นตลิ่ง")

	first := d.Evaluate(current, prev, now)
	alerted := prev.WithAlert(now.Add(-time.Minute), first.Fingerprint)

	dec := d.Evaluate(current, &alerted, now)
	if !dec.Alert || dec.Suppressed {
		t.Errorf("Expected above-bank reading to bypass cooldown, got %+v", dec)
	}
	if !dec.Has(RuleAboveBank) {
		t.Errorf("Expected above_bank rule, got %v", dec.Rules)
	}
}

func TestObservedAtChangeAlone(t *testing.T) {
	prev := stateOf(t, 3.0, nil, "ปกติ")
	prev.ObservedAt = observed.Add(-15 * time.Minute)
	current := reading(t, 3.0, nil, "ปกติ")

	dec := New(DefaultPolicy()).Evaluate(current, prev, now)
	if dec.Alert || len(dec.Reasons) != 0 {
		t.Errorf("Expected a timestamp-only change to stay silent, got %+v", dec)
	}

	policy := DefaultPolicy()
	policy.AlertOnTimeChange = true
	dec = New(policy).Evaluate(current, prev, now)
	if !dec.Alert || !dec.Has(RuleObservedAt) {
		t.Errorf("Expected ALERT with AlertOnTimeChange, got %+v", dec)
	}
}

func TestObservedAtAnnotatesOtherTriggers(t *testing.T) {
	prev := stateOf(t, 3.0, nil, "")
	prev.ObservedAt = observed.Add(-15 * time.Minute)

	dec := New(DefaultPolicy()).Evaluate(reading(t, 3.5, nil, ""), prev, now)
	if !dec.Alert {
		t.Fatalf("Expected ALERT, got %+v", dec)
	}
	want := []string{"magnitude change +0.50m", "new observation time 2025-10-15 14:00"}
	if diff := cmp.Diff(want, dec.Reasons); diff != "" {
		t.Errorf("Reasons mismatch (-want +got):\n%s", diff)
	}
	if dec.Fingerprint != Fingerprint([]Rule{RuleMagnitude}, 3.5) {
		t.Error("Annotation-only rule must not change the fingerprint")
	}
}

func TestFingerprintIsOrderIndependent(t *testing.T) {
	a := Fingerprint([]Rule{RuleMagnitude, RuleNearBank}, 5.651)
	b := Fingerprint([]Rule{RuleNearBank, RuleMagnitude}, 5.649)
	if a != b {
		t.Errorf("Expected equal fingerprints, got %s and %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Expected 16 hex chars, got %q", a)
	}
}
