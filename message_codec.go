package main

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// MessageType identifies the protocol meaning of an FT8 text message.
type MessageType int

const (
	MessageUnknown MessageType = iota
	MessageCQ
	MessageCall
	MessageSignalReport
	MessageRogerReport
	MessageRRR
	MessageSeventyThree
	MessageCustom
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageCQ:
		return "CQ"
	case MessageCall:
		return "CALL"
	case MessageSignalReport:
		return "SIGNAL_REPORT"
	case MessageRogerReport:
		return "ROGER_REPORT"
	case MessageRRR:
		return "RRR"
	case MessageSeventyThree:
		return "SEVENTY_THREE"
	case MessageCustom:
		return "CUSTOM"
	default:
		return "UNKNOWN"
	}
}

// Message is the structured form of one FT8 text message. Only the fields
// meaningful for the given Type are set.
type Message struct {
	Type      MessageType `json:"type"`
	Sender    string      `json:"sender,omitempty"`
	Target    string      `json:"target,omitempty"`
	Grid      string      `json:"grid,omitempty"`
	Report    int         `json:"report,omitempty"`
	HasReport bool        `json:"has_report,omitempty"`
	// Flag marks a directed CQ (e.g. "CQ DX K1ABC"); empty for plain CQs.
	Flag string `json:"flag,omitempty"`
	// Text carries the raw message for CUSTOM/UNKNOWN variants.
	Text string `json:"text,omitempty"`
}

// DecodedMessage pairs a parsed message with the measured qualities of the
// decoded frame.
type DecodedMessage struct {
	Message
	SNR        int     `json:"snr"`
	DT         float64 `json:"dt"`
	FreqOffset int64   `json:"freq_offset"` // Hz above dial frequency
}

var (
	reportToken = regexp.MustCompile(`^[+-]\d{2}$`)
	rogerToken  = regexp.MustCompile(`^R[+-]\d{2}$`)
	gridToken   = regexp.MustCompile(`^[A-R]{2}\d{2}([A-X]{2})?$`)
	lettersOnly = regexp.MustCompile(`^[A-Z]+$`)
)

// isGridToken reports whether the token is a 4- or 6-character Maidenhead
// locator. RR73 matches the grid shape but is a protocol confirmation,
// never a grid.
func isGridToken(s string) bool {
	return s != "RR73" && gridToken.MatchString(s)
}

// isCallsignToken is a loose shape check used during parsing: the token may
// be any plausible callsign, bracketed or not, standard or not.
func isCallsignToken(s string) bool {
	s = strings.Trim(s, "<>")
	if len(s) < 3 || len(s) > 15 {
		return false
	}
	hasDigit := false
	hasAlpha := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z':
			hasAlpha = true
		case r == '/':
		default:
			return false
		}
	}
	return hasDigit && hasAlpha
}

// IsStandardCallsign reports whether the callsign fits the protocol's
// compact encoding: after stripping one optional /suffix, 2-6 alphanumerics
// with exactly one digit, at most two characters before the digit and at
// most three letters after it.
func IsStandardCallsign(s string) bool {
	s = strings.Trim(strings.ToUpper(s), "<>")
	if i := strings.Index(s, "/"); i >= 0 {
		s = s[:i]
	}
	if len(s) < 2 || len(s) > 6 {
		return false
	}
	digitIdx := -1
	digits := 0
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
			digitIdx = i
		case r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	if digits != 1 {
		return false
	}
	return digitIdx <= 2 && len(s)-digitIdx-1 <= 3
}

func unbracket(s string) string {
	return strings.Trim(s, "<>")
}

// ParseMessage parses canonical FT8 message text into its structured form.
// Unparseable text is returned as CUSTOM (or UNKNOWN when empty), never an
// error: every state handler treats those as non-matching.
//
// Parsing precedence, most specific first: CQ, 73, signal report,
// RRR/RR73/roger report, generic two-callsign call, else custom.
func ParseMessage(text string) Message {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Message{Type: MessageUnknown}
	}
	fields := strings.Fields(strings.ToUpper(raw))

	if fields[0] == "CQ" && len(fields) >= 2 && len(fields) <= 4 {
		if m, ok := parseCQ(fields[1:]); ok {
			return m
		}
	}

	if len(fields) == 3 && isCallsignToken(fields[0]) && isCallsignToken(fields[1]) {
		target, sender := unbracket(fields[0]), unbracket(fields[1])
		third := fields[2]
		switch {
		case third == "73":
			return Message{Type: MessageSeventyThree, Target: target, Sender: sender}
		case reportToken.MatchString(third):
			report, _ := strconv.Atoi(third)
			return Message{Type: MessageSignalReport, Target: target, Sender: sender, Report: report, HasReport: true}
		case third == "RRR" || third == "RR73":
			return Message{Type: MessageRRR, Target: target, Sender: sender}
		case rogerToken.MatchString(third):
			report, _ := strconv.Atoi(third[1:])
			return Message{Type: MessageRogerReport, Target: target, Sender: sender, Report: report, HasReport: true}
		case isGridToken(third):
			return Message{Type: MessageCall, Target: target, Sender: sender, Grid: third}
		}
	}

	if len(fields) == 2 && isCallsignToken(fields[0]) && isCallsignToken(fields[1]) {
		return Message{Type: MessageCall, Target: unbracket(fields[0]), Sender: unbracket(fields[1])}
	}

	return Message{Type: MessageCustom, Text: raw}
}

// parseCQ parses the tokens after "CQ": [FLAG] CALLSIGN [GRID].
func parseCQ(rest []string) (Message, bool) {
	grid := ""
	if len(rest) >= 2 && isGridToken(rest[len(rest)-1]) {
		grid = rest[len(rest)-1]
		rest = rest[:len(rest)-1]
	}
	switch len(rest) {
	case 1:
		if isCallsignToken(rest[0]) {
			return Message{Type: MessageCQ, Sender: unbracket(rest[0]), Grid: grid}, true
		}
	case 2:
		if lettersOnly.MatchString(rest[0]) && isCallsignToken(rest[1]) {
			return Message{Type: MessageCQ, Flag: rest[0], Sender: unbracket(rest[1]), Grid: grid}, true
		}
	}
	return Message{}, false
}

// SerializeMessage renders a structured message back to canonical text.
// Non-standard callsigns are bracketed only when the message also carries
// a grid or report, since the compact encoding cannot represent both.
func SerializeMessage(m Message) string {
	switch m.Type {
	case MessageCQ:
		parts := []string{"CQ"}
		if m.Flag != "" {
			parts = append(parts, m.Flag)
		}
		parts = append(parts, formatCallsign(m.Sender, m.Grid != ""))
		if m.Grid != "" {
			parts = append(parts, m.Grid)
		}
		return strings.Join(parts, " ")
	case MessageCall:
		extra := m.Grid != ""
		parts := []string{formatCallsign(m.Target, extra), formatCallsign(m.Sender, extra)}
		if m.Grid != "" {
			parts = append(parts, m.Grid)
		}
		return strings.Join(parts, " ")
	case MessageSignalReport:
		return fmt.Sprintf("%s %s %s",
			formatCallsign(m.Target, true), formatCallsign(m.Sender, true), FormatReport(m.Report))
	case MessageRogerReport:
		return fmt.Sprintf("%s %s R%s",
			formatCallsign(m.Target, true), formatCallsign(m.Sender, true), FormatReport(m.Report))
	case MessageRRR:
		return fmt.Sprintf("%s %s RR73", m.Target, m.Sender)
	case MessageSeventyThree:
		return fmt.Sprintf("%s %s 73", m.Target, m.Sender)
	default:
		return m.Text
	}
}

func formatCallsign(callsign string, hasPayload bool) string {
	if hasPayload && !IsStandardCallsign(callsign) {
		return "<" + callsign + ">"
	}
	return callsign
}

// FormatReport renders a dB report with an explicit sign and two digits,
// the form exchanged on the air ("-01", "+05", "-15").
func FormatReport(report int) string {
	return fmt.Sprintf("%+03d", report)
}

// ReportFromSNR converts a measured SNR to the integer report to send
// back, rounding to the nearest dB.
func ReportFromSNR(snr float64) int {
	return int(math.Round(snr))
}
