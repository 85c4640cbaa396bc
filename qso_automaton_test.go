package main

import (
	"testing"
)

// staticWorked is a WorkedChecker backed by a fixed set.
type staticWorked struct {
	worked map[string]bool
}

func (s *staticWorked) HasWorked(callsign, band string) bool {
	return s.worked[callsign]
}

func newTestConfig(callsign, grid string) *OperatorConfig {
	return &OperatorConfig{
		ID:                       "op-test",
		Mode:                     "FT8",
		MyCallsign:               callsign,
		MyGrid:                   grid,
		Frequency:                14074000,
		TransmitCycles:           []int64{0},
		MaxQSOTimeoutCycles:      3,
		MaxCallAttempts:          5,
		AutoReplyToCQ:            true,
		AutoResumeCQAfterFail:    true,
		AutoResumeCQAfterSuccess: true,
	}
}

func decoded(text string, snr int) DecodedMessage {
	return DecodedMessage{Message: ParseMessage(text), SNR: snr}
}

// TestHappyPathQSO walks both sides of a complete minimal contact and
// checks every transmission against the canonical six-message sequence.
func TestHappyPathQSO(t *testing.T) {
	var aRecords, bRecords []QSORecord
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, func(r QSORecord) { aRecords = append(aRecords, r) })
	b := NewQSOAutomaton(newTestConfig("BA2XYZ", "PM96"), nil, func(r QSORecord) { bRecords = append(bRecords, r) })

	// A calls CQ
	if got := a.CurrentSlotText(); got != "CQ BA1ABC PM95" {
		t.Fatalf("A TX6 text = %q", got)
	}

	// B hears it at -1 dB and answers
	b.HandleDecoded([]DecodedMessage{decoded("CQ BA1ABC PM95", -1)}, true)
	if b.State() != StateTX1 {
		t.Fatalf("B state = %v, want TX1", b.State())
	}
	if got := b.CurrentSlotText(); got != "BA1ABC BA2XYZ PM96" {
		t.Fatalf("B TX1 text = %q", got)
	}

	// A hears the call at -1 dB and sends a report
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ PM96", -1)}, true)
	if a.State() != StateTX2 {
		t.Fatalf("A state = %v, want TX2", a.State())
	}
	if got := a.CurrentSlotText(); got != "BA2XYZ BA1ABC -01" {
		t.Fatalf("A TX2 text = %q", got)
	}

	// B receives the report and rogers it
	b.HandleDecoded([]DecodedMessage{decoded("BA2XYZ BA1ABC -01", -1)}, true)
	if b.State() != StateTX3 {
		t.Fatalf("B state = %v, want TX3", b.State())
	}
	if got := b.CurrentSlotText(); got != "BA1ABC BA2XYZ R-01" {
		t.Fatalf("B TX3 text = %q", got)
	}

	// A receives the roger report and confirms; A's record is emitted on
	// entering TX4
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ R-01", -1)}, true)
	if a.State() != StateTX4 {
		t.Fatalf("A state = %v, want TX4", a.State())
	}
	if got := a.CurrentSlotText(); got != "BA2XYZ BA1ABC RR73" {
		t.Fatalf("A TX4 text = %q", got)
	}
	if len(aRecords) != 1 {
		t.Fatalf("A records = %d, want 1", len(aRecords))
	}

	// B receives RR73 and signs off; B's record is emitted on entering TX5
	b.HandleDecoded([]DecodedMessage{decoded("BA2XYZ BA1ABC RR73", -1)}, true)
	if b.State() != StateTX5 {
		t.Fatalf("B state = %v, want TX5", b.State())
	}
	if got := b.CurrentSlotText(); got != "BA1ABC BA2XYZ 73" {
		t.Fatalf("B TX5 text = %q", got)
	}
	if len(bRecords) != 1 {
		t.Fatalf("B records = %d, want 1", len(bRecords))
	}

	// A hears the 73 and resumes CQ
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ 73", -1)}, true)
	if a.State() != StateTX6 {
		t.Fatalf("A state = %v, want TX6", a.State())
	}

	// B's next receive slot is empty; it resumes CQ too
	b.HandleDecoded(nil, true)
	if b.State() != StateTX6 {
		t.Fatalf("B state = %v, want TX6", b.State())
	}

	rec := aRecords[0]
	if rec.Callsign != "BA2XYZ" || rec.Grid != "PM96" {
		t.Errorf("A record = %s %s", rec.Callsign, rec.Grid)
	}
	if rec.ReportSent == nil || *rec.ReportSent != -1 {
		t.Errorf("A record ReportSent = %v", rec.ReportSent)
	}
	if rec.ReportReceived == nil || *rec.ReportReceived != -1 {
		t.Errorf("A record ReportReceived = %v", rec.ReportReceived)
	}
	if rec.DistanceKm == nil {
		t.Errorf("A record has no distance despite both grids known")
	}
}

// TestSixCharGridCQIsAnswered: a station configured with a subsquare
// locator sends it on the air, and its CQ must still draw replies.
func TestSixCharGridCQIsAnswered(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95AB"), nil, nil)
	if got := a.CurrentSlotText(); got != "CQ BA1ABC PM95AB" {
		t.Fatalf("TX6 text = %q", got)
	}

	b := NewQSOAutomaton(newTestConfig("BA2XYZ", "PM96"), nil, nil)
	b.HandleDecoded([]DecodedMessage{decoded(a.CurrentSlotText(), -3)}, true)
	if b.State() != StateTX1 {
		t.Fatalf("state = %v, want TX1", b.State())
	}
	if b.Context().TargetCallsign != "BA1ABC" || b.Context().TargetGrid != "PM95AB" {
		t.Fatalf("target = %q grid = %q", b.Context().TargetCallsign, b.Context().TargetGrid)
	}
}

// TestFadedReplyRetransmitsUnchanged covers a mid-contact fade: silent
// receive slots below the timeout limit leave the prepared transmission
// byte-identical, and a late confirmation still completes the contact.
func TestFadedReplyRetransmitsUnchanged(t *testing.T) {
	var records []QSORecord
	b := NewQSOAutomaton(newTestConfig("BA2XYZ", "PM96"), nil, func(r QSORecord) { records = append(records, r) })

	b.HandleDecoded([]DecodedMessage{decoded("CQ BA1ABC PM95", -1)}, true)
	if b.State() != StateTX1 {
		t.Fatalf("state = %v, want TX1", b.State())
	}
	call := b.CurrentSlotText()
	if call != "BA1ABC BA2XYZ PM96" {
		t.Fatalf("TX1 text = %q", call)
	}

	// two empty receive slots: below MaxQSOTimeoutCycles, the same call
	// goes out again unchanged
	for i := 0; i < 2; i++ {
		if stop, changed := b.HandleDecoded(nil, true); stop || changed {
			t.Fatalf("silent slot %d: stop=%v changed=%v", i, stop, changed)
		}
		if got := b.CurrentSlotText(); got != call {
			t.Fatalf("silent slot %d: text = %q, want %q", i, got, call)
		}
	}

	// the report finally gets through; the contact proceeds to completion
	b.HandleDecoded([]DecodedMessage{decoded("BA2XYZ BA1ABC -01", -1)}, true)
	if b.State() != StateTX3 {
		t.Fatalf("state = %v, want TX3", b.State())
	}
	b.HandleDecoded([]DecodedMessage{decoded("BA2XYZ BA1ABC RR73", -1)}, true)
	if b.State() != StateTX5 {
		t.Fatalf("state = %v, want TX5", b.State())
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}
}

func TestDirectCallBeatsStrongerCQ(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	a.HandleDecoded([]DecodedMessage{
		decoded("CQ JA1AAA PM96", 10),
		decoded("BA1ABC BA2XYZ PM96", -20),
	}, true)
	if a.State() != StateTX2 {
		t.Fatalf("state = %v, want TX2", a.State())
	}
	if a.Context().TargetCallsign != "BA2XYZ" {
		t.Fatalf("target = %q, want BA2XYZ", a.Context().TargetCallsign)
	}
}

func TestArbitrationPrefersStrongestDirectCaller(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	a.HandleDecoded([]DecodedMessage{
		decoded("BA1ABC JA1AAA PM96", -20),
		decoded("BA1ABC JA2BBB PM97", -8),
		decoded("BA1ABC JA3CCC PM98", -15),
	}, true)
	if a.Context().TargetCallsign != "JA2BBB" {
		t.Fatalf("target = %q, want JA2BBB", a.Context().TargetCallsign)
	}
}

func TestSignalReportCallerEntersTX3(t *testing.T) {
	// a station answering our CQ with a report directly skips the grid
	// exchange; we answer with a roger report
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ -05", -3)}, true)
	if a.State() != StateTX3 {
		t.Fatalf("state = %v, want TX3", a.State())
	}
	ctx := a.Context()
	if ctx.ReportReceived == nil || *ctx.ReportReceived != -5 {
		t.Fatalf("ReportReceived = %v, want -5", ctx.ReportReceived)
	}
	if got := a.CurrentSlotText(); got != "BA2XYZ BA1ABC R-03" {
		t.Fatalf("TX3 text = %q", got)
	}
}

func TestWorkedCQSkippedUnconditionally(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.ReplyToWorkedStations = true
	worked := &staticWorked{worked: map[string]bool{"JA1AAA": true}}
	a := NewQSOAutomaton(cfg, worked, nil)

	// CQ replies never repeat a contact, even with reply_to_worked_stations
	a.HandleDecoded([]DecodedMessage{decoded("CQ JA1AAA PM96", 5)}, true)
	if a.State() != StateTX6 {
		t.Fatalf("state = %v, want TX6 (worked CQ skipped)", a.State())
	}

	// the weaker unworked CQ wins instead
	a.HandleDecoded([]DecodedMessage{
		decoded("CQ JA1AAA PM96", 5),
		decoded("CQ JA2BBB PM97", -10),
	}, true)
	if a.Context().TargetCallsign != "JA2BBB" {
		t.Fatalf("target = %q, want JA2BBB", a.Context().TargetCallsign)
	}
}

func TestWorkedDirectCallerGatedByConfig(t *testing.T) {
	worked := &staticWorked{worked: map[string]bool{"BA2XYZ": true}}

	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.ReplyToWorkedStations = false
	a := NewQSOAutomaton(cfg, worked, nil)
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ PM96", -1)}, true)
	if a.State() != StateTX6 {
		t.Fatalf("worked direct caller accepted despite reply_to_worked_stations=false")
	}

	cfg2 := newTestConfig("BA1ABC", "PM95")
	cfg2.ReplyToWorkedStations = true
	a2 := NewQSOAutomaton(cfg2, worked, nil)
	a2.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ PM96", -1)}, true)
	if a2.State() != StateTX2 {
		t.Fatalf("worked direct caller rejected despite reply_to_worked_stations=true")
	}
}

func TestPrioritizeNewCallsPartitionsWorkedCallers(t *testing.T) {
	worked := &staticWorked{worked: map[string]bool{"JA1AAA": true}}
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.ReplyToWorkedStations = true
	cfg.PrioritizeNewCalls = true
	a := NewQSOAutomaton(cfg, worked, nil)

	// the worked caller is stronger but the new one is preferred
	a.HandleDecoded([]DecodedMessage{
		decoded("BA1ABC JA1AAA PM96", 5),
		decoded("BA1ABC JA2BBB PM97", -12),
	}, true)
	if a.Context().TargetCallsign != "JA2BBB" {
		t.Fatalf("target = %q, want JA2BBB", a.Context().TargetCallsign)
	}
}

func TestDirectedCQFlagMatching(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	a := NewQSOAutomaton(cfg, nil, nil)

	// a directed CQ for a flag we don't carry is ignored
	a.HandleDecoded([]DecodedMessage{decoded("CQ DX JA1AAA PM96", 0)}, true)
	if a.State() != StateTX6 {
		t.Fatalf("state = %v, want TX6 (foreign directed CQ ignored)", a.State())
	}

	cfgDX := newTestConfig("BA1ABC", "PM95")
	cfgDX.CQFlag = "DX"
	aDX := NewQSOAutomaton(cfgDX, nil, nil)
	aDX.HandleDecoded([]DecodedMessage{decoded("CQ DX JA1AAA PM96", 0)}, true)
	if aDX.State() != StateTX1 {
		t.Fatalf("state = %v, want TX1 (matching directed CQ answered)", aDX.State())
	}
}

func TestTimeoutResumesCQ(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.MaxQSOTimeoutCycles = 2
	a := NewQSOAutomaton(cfg, nil, nil)

	// start a contact, then let the target fade
	a.HandleDecoded([]DecodedMessage{decoded("CQ JA1AAA PM96", -1)}, true)
	if a.State() != StateTX1 {
		t.Fatalf("state = %v, want TX1", a.State())
	}

	stop, changed := a.HandleDecoded(nil, true)
	if stop || changed {
		t.Fatalf("first silent cycle must not time out")
	}
	stop, changed = a.HandleDecoded(nil, true)
	if stop || !changed {
		t.Fatalf("second silent cycle should resume CQ, stop=%v changed=%v", stop, changed)
	}
	if a.State() != StateTX6 {
		t.Fatalf("state = %v, want TX6", a.State())
	}
	if a.Context().TargetCallsign != "" {
		t.Fatalf("target not cleared on timeout")
	}
}

func TestTimeoutStopsWhenResumeDisabled(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.MaxQSOTimeoutCycles = 1
	cfg.AutoResumeCQAfterFail = false
	a := NewQSOAutomaton(cfg, nil, nil)

	a.HandleDecoded([]DecodedMessage{decoded("CQ JA1AAA PM96", -1)}, true)
	stop, _ := a.HandleDecoded(nil, true)
	if !stop {
		t.Fatalf("expected stop when auto_resume_cq_after_fail is off")
	}
}

func TestTransmitSlotsDoNotCountTowardTimeout(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.MaxQSOTimeoutCycles = 1
	a := NewQSOAutomaton(cfg, nil, nil)

	a.HandleDecoded([]DecodedMessage{decoded("CQ JA1AAA PM96", -1)}, true)
	// batches from our own transmit slots carry countTimeout=false
	for i := 0; i < 5; i++ {
		if stop, changed := a.HandleDecoded(nil, false); stop || changed {
			t.Fatalf("transmit-slot batch advanced the timeout clock")
		}
	}
	if a.State() != StateTX1 {
		t.Fatalf("state = %v, want TX1", a.State())
	}
}

func TestMaxCallAttemptsForcesTimeout(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.MaxCallAttempts = 2
	a := NewQSOAutomaton(cfg, nil, nil)

	a.HandleDecoded([]DecodedMessage{decoded("CQ JA1AAA PM96", -1)}, true)
	text := a.CurrentSlotText()
	if a.RecordTransmission(text) {
		t.Fatalf("attempt 1 must not stop")
	}
	if a.RecordTransmission(text) {
		t.Fatalf("attempt 2 must not stop")
	}
	// the third identical transmission exceeds the limit; resume is on, so
	// the automaton falls back to CQ instead of stopping
	if a.RecordTransmission(text) {
		t.Fatalf("resume is enabled, expected fallback not stop")
	}
	if a.State() != StateTX6 {
		t.Fatalf("state = %v, want TX6", a.State())
	}
}

func TestSignoffReArbitratesDirectly(t *testing.T) {
	// a new caller heard while in TX4 is answered immediately, without
	// passing through TX6
	var records []QSORecord
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, func(r QSORecord) { records = append(records, r) })

	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ PM96", -1)}, true)
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ R-01", -1)}, true)
	if a.State() != StateTX4 {
		t.Fatalf("state = %v, want TX4", a.State())
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1", len(records))
	}

	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC JA9NEW PM97", -6)}, true)
	if a.State() != StateTX2 {
		t.Fatalf("state = %v, want TX2", a.State())
	}
	if a.Context().TargetCallsign != "JA9NEW" {
		t.Fatalf("target = %q, want JA9NEW", a.Context().TargetCallsign)
	}
}

func TestSignoffStopsWhenResumeDisabled(t *testing.T) {
	cfg := newTestConfig("BA1ABC", "PM95")
	cfg.AutoResumeCQAfterSuccess = false
	a := NewQSOAutomaton(cfg, nil, nil)

	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ PM96", -1)}, true)
	a.HandleDecoded([]DecodedMessage{decoded("BA1ABC BA2XYZ R-01", -1)}, true)
	stop, _ := a.HandleDecoded(nil, true)
	if !stop {
		t.Fatalf("expected stop after sign-off with auto_resume_cq_after_success off")
	}
}

func TestOwnEchoIsIgnored(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	a.HandleDecoded([]DecodedMessage{decoded("CQ BA1ABC PM95", 20)}, true)
	if a.State() != StateTX6 {
		t.Fatalf("answered own CQ echo")
	}
}

func TestRequestCallReplaysLastMessage(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)

	// replaying a heard CQ starts at TX1
	if err := a.RequestCall("JA1AAA", "CQ JA1AAA PM96"); err != nil {
		t.Fatal(err)
	}
	if a.State() != StateTX1 {
		t.Fatalf("state = %v, want TX1", a.State())
	}

	// replaying a call addressed to us starts at TX2
	b := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	if err := b.RequestCall("JA1AAA", "BA1ABC JA1AAA PM96"); err != nil {
		t.Fatal(err)
	}
	if b.State() != StateTX2 {
		t.Fatalf("state = %v, want TX2", b.State())
	}

	// replaying a report addressed to us starts at TX3
	c := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	if err := c.RequestCall("JA1AAA", "BA1ABC JA1AAA -07"); err != nil {
		t.Fatal(err)
	}
	if c.State() != StateTX3 {
		t.Fatalf("state = %v, want TX3", c.State())
	}

	// replaying a call addressed to someone else starts cold at TX1,
	// never TX2: that station asked a third party for a report, not us
	e := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	if err := e.RequestCall("JA1AAA", "W9XYZ JA1AAA PM96"); err != nil {
		t.Fatal(err)
	}
	if e.State() != StateTX1 || e.Context().TargetCallsign != "JA1AAA" {
		t.Fatalf("third-party call replay: state=%v target=%q", e.State(), e.Context().TargetCallsign)
	}

	// no last message: cold start at TX1
	d := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	if err := d.RequestCall("JA1AAA", ""); err != nil {
		t.Fatal(err)
	}
	if d.State() != StateTX1 || d.Context().TargetCallsign != "JA1AAA" {
		t.Fatalf("cold start: state=%v target=%q", d.State(), d.Context().TargetCallsign)
	}

	if err := d.RequestCall("", ""); err == nil {
		t.Fatalf("empty callsign must be rejected")
	}
}

func TestSlotContentOverride(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	a.SetSlotContent(StateTX6, "CQ TEST BA1ABC")
	if got := a.CurrentSlotText(); got != "CQ TEST BA1ABC" {
		t.Fatalf("override not applied: %q", got)
	}
	a.SetSlotContent(StateTX6, "")
	if got := a.CurrentSlotText(); got != "CQ BA1ABC PM95" {
		t.Fatalf("override not removed: %q", got)
	}
}

func TestSlotsSnapshot(t *testing.T) {
	a := NewQSOAutomaton(newTestConfig("BA1ABC", "PM95"), nil, nil)
	slots := a.Slots()
	if slots["TX6"] != "CQ BA1ABC PM95" {
		t.Errorf("TX6 = %q", slots["TX6"])
	}
	// no target yet: contact slots are empty
	for _, label := range []string{"TX1", "TX2", "TX3", "TX4", "TX5"} {
		if slots[label] != "" {
			t.Errorf("%s = %q, want empty", label, slots[label])
		}
	}

	a.HandleDecoded([]DecodedMessage{decoded("CQ JA1AAA PM96", -3)}, true)
	slots = a.Slots()
	if slots["TX1"] != "JA1AAA BA1ABC PM95" {
		t.Errorf("TX1 = %q", slots["TX1"])
	}
	if slots["TX2"] != "JA1AAA BA1ABC -03" {
		t.Errorf("TX2 = %q", slots["TX2"])
	}
}
