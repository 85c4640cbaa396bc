package main

import "testing"

func TestParseMessage(t *testing.T) {
	tests := []struct {
		text string
		want Message
	}{
		{"CQ BA1ABC PM95", Message{Type: MessageCQ, Sender: "BA1ABC", Grid: "PM95"}},
		{"CQ BA1ABC PM95AB", Message{Type: MessageCQ, Sender: "BA1ABC", Grid: "PM95AB"}},
		{"CQ BA1ABC", Message{Type: MessageCQ, Sender: "BA1ABC"}},
		{"CQ DX K1ABC FN42", Message{Type: MessageCQ, Flag: "DX", Sender: "K1ABC", Grid: "FN42"}},
		{"CQ POTA W1AW", Message{Type: MessageCQ, Flag: "POTA", Sender: "W1AW"}},
		{"BA1ABC BA2XYZ PM96", Message{Type: MessageCall, Target: "BA1ABC", Sender: "BA2XYZ", Grid: "PM96"}},
		{"BA1ABC BA2XYZ PM96HJ", Message{Type: MessageCall, Target: "BA1ABC", Sender: "BA2XYZ", Grid: "PM96HJ"}},
		{"BA1ABC BA2XYZ", Message{Type: MessageCall, Target: "BA1ABC", Sender: "BA2XYZ"}},
		{"BA2XYZ BA1ABC -01", Message{Type: MessageSignalReport, Target: "BA2XYZ", Sender: "BA1ABC", Report: -1, HasReport: true}},
		{"BA2XYZ BA1ABC +05", Message{Type: MessageSignalReport, Target: "BA2XYZ", Sender: "BA1ABC", Report: 5, HasReport: true}},
		{"BA1ABC BA2XYZ R-01", Message{Type: MessageRogerReport, Target: "BA1ABC", Sender: "BA2XYZ", Report: -1, HasReport: true}},
		{"BA2XYZ BA1ABC RR73", Message{Type: MessageRRR, Target: "BA2XYZ", Sender: "BA1ABC"}},
		{"BA2XYZ BA1ABC RRR", Message{Type: MessageRRR, Target: "BA2XYZ", Sender: "BA1ABC"}},
		{"BA1ABC BA2XYZ 73", Message{Type: MessageSeventyThree, Target: "BA1ABC", Sender: "BA2XYZ"}},
		{"K1ABC <VK9DX/2> FN42", Message{Type: MessageCall, Target: "K1ABC", Sender: "VK9DX/2", Grid: "FN42"}},
		{"TNX QSO GL", Message{Type: MessageCustom, Text: "TNX QSO GL"}},
		{"", Message{Type: MessageUnknown}},
		{"   ", Message{Type: MessageUnknown}},
	}
	for _, tt := range tests {
		got := ParseMessage(tt.text)
		if got != tt.want {
			t.Errorf("ParseMessage(%q) = %+v, want %+v", tt.text, got, tt.want)
		}
	}
}

func TestParseMessageRR73IsNotAGrid(t *testing.T) {
	m := ParseMessage("BA2XYZ BA1ABC RR73")
	if m.Type != MessageRRR {
		t.Fatalf("expected RRR, got %v", m.Type)
	}
	if m.Grid != "" {
		t.Fatalf("RR73 must not be treated as a grid, got %q", m.Grid)
	}
}

func TestParsePrecedenceCQBeforeCall(t *testing.T) {
	// "CQ" followed by two plausible tokens must parse as CQ, not as a
	// call addressed to a station named CQ.
	m := ParseMessage("CQ K1ABC FN42")
	if m.Type != MessageCQ {
		t.Fatalf("expected CQ, got %v", m.Type)
	}
}

func TestIsStandardCallsign(t *testing.T) {
	tests := []struct {
		callsign string
		want     bool
	}{
		{"BA1ABC", true},
		{"K1ABC", true},
		{"W1AW", true},
		{"VK9DX/2", true}, // suffix stripped before the check
		{"JA1ABC/P", true},
		{"<BA1ABC>", true}, // brackets stripped before the check
		{"1ABC", true},
		{"ABC", false},       // no digit
		{"2E0ABC", false},    // two digits
		{"E77DX", false},     // two digits
		{"LONG1CALL", false}, // too long
		{"K1ABCD", false},    // four letters after the digit
		{"A", false},         // too short
	}
	for _, tt := range tests {
		if got := IsStandardCallsign(tt.callsign); got != tt.want {
			t.Errorf("IsStandardCallsign(%q) = %v, want %v", tt.callsign, got, tt.want)
		}
	}
}

func TestSerializeMessage(t *testing.T) {
	tests := []struct {
		msg  Message
		want string
	}{
		{Message{Type: MessageCQ, Sender: "BA1ABC", Grid: "PM95"}, "CQ BA1ABC PM95"},
		{Message{Type: MessageCQ, Flag: "DX", Sender: "K1ABC"}, "CQ DX K1ABC"},
		{Message{Type: MessageCall, Target: "BA1ABC", Sender: "BA2XYZ", Grid: "PM96"}, "BA1ABC BA2XYZ PM96"},
		{Message{Type: MessageSignalReport, Target: "BA2XYZ", Sender: "BA1ABC", Report: -1, HasReport: true}, "BA2XYZ BA1ABC -01"},
		{Message{Type: MessageRogerReport, Target: "BA1ABC", Sender: "BA2XYZ", Report: -1, HasReport: true}, "BA1ABC BA2XYZ R-01"},
		{Message{Type: MessageRRR, Target: "BA2XYZ", Sender: "BA1ABC"}, "BA2XYZ BA1ABC RR73"},
		{Message{Type: MessageSeventyThree, Target: "BA1ABC", Sender: "BA2XYZ"}, "BA1ABC BA2XYZ 73"},
		{Message{Type: MessageCustom, Text: "TNX QSO GL"}, "TNX QSO GL"},
	}
	for _, tt := range tests {
		if got := SerializeMessage(tt.msg); got != tt.want {
			t.Errorf("SerializeMessage(%+v) = %q, want %q", tt.msg, got, tt.want)
		}
	}
}

func TestSerializeBracketsNonStandardOnlyWithPayload(t *testing.T) {
	// a non-standard callsign plus a grid cannot fit the compact encoding,
	// so the callsign is bracketed
	withGrid := SerializeMessage(Message{Type: MessageCall, Target: "K1ABC", Sender: "E77DX", Grid: "FN42"})
	if withGrid != "K1ABC <E77DX> FN42" {
		t.Errorf("with grid: got %q", withGrid)
	}
	// without a payload the full callsign is sent as-is
	bare := SerializeMessage(Message{Type: MessageCall, Target: "K1ABC", Sender: "E77DX"})
	if bare != "K1ABC E77DX" {
		t.Errorf("bare: got %q", bare)
	}
}

func TestSerializeRRRCanonicalizesToRR73(t *testing.T) {
	got := SerializeMessage(Message{Type: MessageRRR, Target: "A1AA", Sender: "B2BB"})
	if got != "A1AA B2BB RR73" {
		t.Fatalf("got %q", got)
	}
}

func TestRoundTrip(t *testing.T) {
	texts := []string{
		"CQ BA1ABC PM95",
		"CQ BA1ABC PM95AB",
		"CQ DX K1ABC FN42",
		"BA1ABC BA2XYZ PM96",
		"BA2XYZ BA1ABC -01",
		"BA1ABC BA2XYZ R-01",
		"BA1ABC BA2XYZ 73",
		"TNX QSO GL",
	}
	for _, text := range texts {
		if got := SerializeMessage(ParseMessage(text)); got != text {
			t.Errorf("round trip of %q produced %q", text, got)
		}
	}
}

func TestFormatReport(t *testing.T) {
	tests := []struct {
		report int
		want   string
	}{
		{-1, "-01"},
		{5, "+05"},
		{-15, "-15"},
		{0, "+00"},
		{12, "+12"},
	}
	for _, tt := range tests {
		if got := FormatReport(tt.report); got != tt.want {
			t.Errorf("FormatReport(%d) = %q, want %q", tt.report, got, tt.want)
		}
	}
}

func TestReportFromSNR(t *testing.T) {
	if got := ReportFromSNR(-1.4); got != -1 {
		t.Errorf("ReportFromSNR(-1.4) = %d, want -1", got)
	}
	if got := ReportFromSNR(4.6); got != 5 {
		t.Errorf("ReportFromSNR(4.6) = %d, want 5", got)
	}
}
