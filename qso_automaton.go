package main

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TXState identifies one of the six canonical transmit slots of a standard
// FT8 contact. TX6 (calling CQ / listening) is the initial state.
type TXState int

const (
	StateTX1 TXState = iota + 1 // called someone, awaiting their report
	StateTX2                    // sent a signal report, awaiting roger
	StateTX3                    // sent roger, awaiting confirmation
	StateTX4                    // confirming (RR73)
	StateTX5                    // signing off (73)
	StateTX6                    // calling CQ / listening
)

// String returns the slot label.
func (s TXState) String() string {
	if s >= StateTX1 && s <= StateTX6 {
		return fmt.Sprintf("TX%d", int(s))
	}
	return "TX?"
}

// ParseTXState converts a slot label ("TX1".."TX6") to a TXState.
func ParseTXState(label string) (TXState, error) {
	switch strings.ToUpper(strings.TrimSpace(label)) {
	case "TX1":
		return StateTX1, nil
	case "TX2":
		return StateTX2, nil
	case "TX3":
		return StateTX3, nil
	case "TX4":
		return StateTX4, nil
	case "TX5":
		return StateTX5, nil
	case "TX6":
		return StateTX6, nil
	default:
		return 0, fmt.Errorf("unknown TX state: %q", label)
	}
}

// OperatorConfig is the per-station configuration. Owned by the operator;
// mutated only through explicit update commands.
type OperatorConfig struct {
	ID                       string  `yaml:"id" json:"id"`
	Mode                     string  `yaml:"mode" json:"mode"`
	MyCallsign               string  `yaml:"callsign" json:"callsign"`
	MyGrid                   string  `yaml:"grid" json:"grid"`
	Frequency                uint64  `yaml:"frequency" json:"frequency"` // dial frequency in Hz
	TransmitCycles           []int64 `yaml:"transmit_cycles" json:"transmit_cycles"`
	MaxQSOTimeoutCycles      int     `yaml:"max_qso_timeout_cycles" json:"max_qso_timeout_cycles"`
	MaxCallAttempts          int     `yaml:"max_call_attempts" json:"max_call_attempts"`
	AutoReplyToCQ            bool    `yaml:"auto_reply_to_cq" json:"auto_reply_to_cq"`
	AutoResumeCQAfterFail    bool    `yaml:"auto_resume_cq_after_fail" json:"auto_resume_cq_after_fail"`
	AutoResumeCQAfterSuccess bool    `yaml:"auto_resume_cq_after_success" json:"auto_resume_cq_after_success"`
	ReplyToWorkedStations    bool    `yaml:"reply_to_worked_stations" json:"reply_to_worked_stations"`
	PrioritizeNewCalls       bool    `yaml:"prioritize_new_calls" json:"prioritize_new_calls"`
	// CQFlag, when set, is the directed-CQ flag this station answers and
	// sends (e.g. "DX"). Directed CQs with a different flag are ignored.
	CQFlag string `yaml:"cq_flag" json:"cq_flag,omitempty"`
}

// QSOContext is the mutable working state of one in-progress contact.
// At most one target callsign is active at a time.
type QSOContext struct {
	TargetCallsign  string `json:"target_callsign,omitempty"`
	TargetGrid      string `json:"target_grid,omitempty"`
	ReportSent      *int   `json:"report_sent,omitempty"`
	ReportReceived  *int   `json:"report_received,omitempty"`
	ActualFrequency uint64 `json:"actual_frequency,omitempty"`

	qsoStart *time.Time
}

func (c *QSOContext) clearTarget() {
	c.TargetCallsign = ""
	c.TargetGrid = ""
	c.ReportSent = nil
	c.ReportReceived = nil
	c.ActualFrequency = 0
	c.qsoStart = nil
}

// QSORecord is the finalized summary of one completed contact, emitted
// once and owned thereafter by the logbook.
type QSORecord struct {
	ID             string    `json:"id"`
	Callsign       string    `json:"callsign"`
	Grid           string    `json:"grid,omitempty"`
	Frequency      uint64    `json:"frequency"`
	Mode           string    `json:"mode"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ReportSent     *int      `json:"report_sent,omitempty"`
	ReportReceived *int      `json:"report_received,omitempty"`
	MyCallsign     string    `json:"my_callsign"`
	MyGrid         string    `json:"my_grid"`
	DistanceKm     *float64  `json:"distance_km,omitempty"`
}

// WorkedChecker answers "have I worked this callsign on this band". The
// gateway behind it must bound its wait and default to false so
// arbitration always terminates.
type WorkedChecker interface {
	HasWorked(callsign, band string) bool
}

// handleResult is what a state handler reports back: an optional state
// change, or a request to stop transmitting.
type handleResult struct {
	NextState TXState // 0 means no change
	Stop      bool
}

type stateHandler struct {
	handle    func(a *QSOAutomaton, msgs []DecodedMessage) handleResult
	onEnter   func(a *QSOAutomaton)
	onTimeout func(a *QSOAutomaton) handleResult
}

// QSOAutomaton drives one station's contact sequence: it consumes decoded
// message batches, arbitrates among callers, and selects the text for the
// next transmission.
type QSOAutomaton struct {
	cfg      *OperatorConfig
	ctx      *QSOContext
	worked   WorkedChecker
	onRecord func(QSORecord)
	now      func() time.Time

	state        TXState
	handlers     map[TXState]stateHandler
	timeoutCount int
	attempts     int
	lastSent     string
	overrides    map[TXState]string
}

// NewQSOAutomaton creates an automaton in the listening state.
func NewQSOAutomaton(cfg *OperatorConfig, worked WorkedChecker, onRecord func(QSORecord)) *QSOAutomaton {
	a := &QSOAutomaton{
		cfg:       cfg,
		ctx:       &QSOContext{},
		worked:    worked,
		onRecord:  onRecord,
		now:       time.Now,
		state:     StateTX6,
		overrides: make(map[TXState]string),
	}
	a.handlers = map[TXState]stateHandler{
		StateTX1: {handle: handleAwaitReport, onTimeout: timeoutResume},
		StateTX2: {handle: handleAwaitRoger, onTimeout: timeoutResume},
		StateTX3: {handle: handleAwaitConfirm, onTimeout: timeoutResume},
		StateTX4: {handle: handleSignoff, onEnter: enterSignoff},
		StateTX5: {handle: handleSignoff, onEnter: enterSignoff},
		StateTX6: {handle: handleListening},
	}
	return a
}

// State returns the current TX state.
func (a *QSOAutomaton) State() TXState { return a.state }

// Context returns the working QSO context.
func (a *QSOAutomaton) Context() *QSOContext { return a.ctx }

// SetState forces a state change, running the target state's entry hook.
func (a *QSOAutomaton) SetState(s TXState) {
	a.transition(s)
}

// SetSlotContent overrides the prepared text for one TX label. An empty
// text removes the override.
func (a *QSOAutomaton) SetSlotContent(s TXState, text string) {
	if text == "" {
		delete(a.overrides, s)
		return
	}
	a.overrides[s] = text
}

// HandleDecoded feeds one slot's decoded messages through the current
// state handler. countTimeout is false for the station's own transmit
// slots, which do not advance the timeout clock. Returns stop=true when
// the automaton wants its owner to cease transmitting, and changed=true
// when the state moved.
func (a *QSOAutomaton) HandleDecoded(msgs []DecodedMessage, countTimeout bool) (stop, changed bool) {
	msgs = a.filterEcho(msgs)
	h := a.handlers[a.state]
	res := h.handle(a, msgs)
	switch {
	case res.Stop:
		a.ctx.clearTarget()
		return true, true
	case res.NextState != 0:
		a.transition(res.NextState)
		return false, true
	}
	if countTimeout && h.onTimeout != nil {
		a.timeoutCount++
		if a.timeoutCount >= a.cfg.MaxQSOTimeoutCycles {
			return a.applyTimeout()
		}
	}
	return false, false
}

// RecordTransmission notes that the given text was handed to the
// transmitter. Retransmitting identical content more than MaxCallAttempts
// times forces a timeout evaluation. Returns stop=true when that
// evaluation decides to stop.
func (a *QSOAutomaton) RecordTransmission(text string) (stop bool) {
	if text == a.lastSent {
		a.attempts++
	} else {
		a.lastSent = text
		a.attempts = 1
	}
	if a.cfg.MaxCallAttempts > 0 && a.attempts > a.cfg.MaxCallAttempts {
		stop, _ := a.applyTimeout()
		return stop
	}
	return false
}

// RequestCall force-initiates a contact with the given callsign. When the
// last message heard from that station is known it is replayed so the
// matching state is entered directly; otherwise the contact starts cold at
// TX1.
func (a *QSOAutomaton) RequestCall(callsign, lastMessage string) error {
	callsign = strings.ToUpper(strings.TrimSpace(callsign))
	if callsign == "" {
		return fmt.Errorf("empty callsign")
	}
	if lastMessage != "" {
		dm := DecodedMessage{Message: ParseMessage(lastMessage)}
		if dm.Sender == callsign {
			switch dm.Type {
			case MessageCall:
				if dm.Target == a.cfg.MyCallsign {
					a.acquireTarget(&dm)
					a.transition(StateTX2)
					return nil
				}
			case MessageSignalReport:
				if dm.Target == a.cfg.MyCallsign {
					a.acquireTarget(&dm)
					a.transition(StateTX3)
					return nil
				}
			case MessageCQ:
				a.acquireTarget(&dm)
				a.transition(StateTX1)
				return nil
			}
		}
	}
	a.ctx.clearTarget()
	a.ctx.TargetCallsign = callsign
	start := a.now()
	a.ctx.qsoStart = &start
	a.transition(StateTX1)
	return nil
}

// CurrentSlotText returns the text prepared for the current state's slot.
func (a *QSOAutomaton) CurrentSlotText() string {
	return a.slotText(a.state)
}

// Slots returns the text currently prepared for every TX label.
func (a *QSOAutomaton) Slots() map[string]string {
	slots := make(map[string]string, 6)
	for s := StateTX1; s <= StateTX6; s++ {
		slots[s.String()] = a.slotText(s)
	}
	return slots
}

func (a *QSOAutomaton) slotText(s TXState) string {
	if text, ok := a.overrides[s]; ok {
		return text
	}
	cfg, ctx := a.cfg, a.ctx
	switch s {
	case StateTX1:
		if ctx.TargetCallsign == "" {
			return ""
		}
		return SerializeMessage(Message{Type: MessageCall, Target: ctx.TargetCallsign, Sender: cfg.MyCallsign, Grid: cfg.MyGrid})
	case StateTX2:
		if ctx.TargetCallsign == "" || ctx.ReportSent == nil {
			return ""
		}
		return SerializeMessage(Message{Type: MessageSignalReport, Target: ctx.TargetCallsign, Sender: cfg.MyCallsign, Report: *ctx.ReportSent, HasReport: true})
	case StateTX3:
		if ctx.TargetCallsign == "" || ctx.ReportSent == nil {
			return ""
		}
		return SerializeMessage(Message{Type: MessageRogerReport, Target: ctx.TargetCallsign, Sender: cfg.MyCallsign, Report: *ctx.ReportSent, HasReport: true})
	case StateTX4:
		if ctx.TargetCallsign == "" {
			return ""
		}
		return SerializeMessage(Message{Type: MessageRRR, Target: ctx.TargetCallsign, Sender: cfg.MyCallsign})
	case StateTX5:
		if ctx.TargetCallsign == "" {
			return ""
		}
		return SerializeMessage(Message{Type: MessageSeventyThree, Target: ctx.TargetCallsign, Sender: cfg.MyCallsign})
	case StateTX6:
		return SerializeMessage(Message{Type: MessageCQ, Flag: a.cfg.CQFlag, Sender: cfg.MyCallsign, Grid: cfg.MyGrid})
	}
	return ""
}

func (a *QSOAutomaton) transition(next TXState) {
	if DebugMode {
		log.Printf("QSOAutomaton[%s]: %s -> %s (target %q)", a.cfg.MyCallsign, a.state, next, a.ctx.TargetCallsign)
	}
	a.state = next
	a.timeoutCount = 0
	a.attempts = 0
	a.lastSent = ""
	if h := a.handlers[next]; h.onEnter != nil {
		h.onEnter(a)
	}
}

func (a *QSOAutomaton) applyTimeout() (stop, changed bool) {
	a.timeoutCount = 0
	h := a.handlers[a.state]
	if h.onTimeout == nil {
		return false, false
	}
	res := h.onTimeout(a)
	switch {
	case res.Stop:
		a.ctx.clearTarget()
		return true, true
	case res.NextState != 0:
		a.transition(res.NextState)
		return false, true
	}
	return false, false
}

// filterEcho drops messages whose sender is this station, except
// custom/unknown text which never carries a protocol sender.
func (a *QSOAutomaton) filterEcho(msgs []DecodedMessage) []DecodedMessage {
	out := msgs[:0:0]
	for _, m := range msgs {
		if m.Sender == a.cfg.MyCallsign && m.Type != MessageCustom && m.Type != MessageUnknown {
			continue
		}
		out = append(out, m)
	}
	return out
}

// acquireTarget captures the chosen candidate into the QSO context. The
// measured SNR becomes the report this station will send back.
func (a *QSOAutomaton) acquireTarget(m *DecodedMessage) {
	ctx := a.ctx
	ctx.TargetCallsign = m.Sender
	ctx.TargetGrid = m.Grid
	report := ReportFromSNR(float64(m.SNR))
	ctx.ReportSent = &report
	if m.Type == MessageSignalReport && m.HasReport {
		received := m.Report
		ctx.ReportReceived = &received
	}
	if ctx.qsoStart == nil {
		start := a.now()
		ctx.qsoStart = &start
	}
	a.updateFrequency(m)
}

// updateFrequency derives the actual contact frequency from the station's
// dial frequency plus the decoded audio offset. Dial frequencies at or
// below 1 MHz are placeholders and are ignored.
func (a *QSOAutomaton) updateFrequency(m *DecodedMessage) {
	if a.cfg.Frequency > 1_000_000 {
		a.ctx.ActualFrequency = a.cfg.Frequency + uint64(m.FreqOffset)
	}
}

func (a *QSOAutomaton) band() string {
	return BandForFrequency(a.cfg.Frequency)
}

// emitRecord finalizes the in-progress contact into a QSORecord and clears
// the start marker so the same contact is never recorded twice.
func (a *QSOAutomaton) emitRecord() {
	ctx := a.ctx
	if ctx.TargetCallsign == "" || ctx.qsoStart == nil {
		return
	}
	end := a.now()
	freq := ctx.ActualFrequency
	if freq == 0 {
		freq = a.cfg.Frequency
	}
	rec := QSORecord{
		ID:             uuid.NewString(),
		Callsign:       ctx.TargetCallsign,
		Grid:           ctx.TargetGrid,
		Frequency:      freq,
		Mode:           a.cfg.Mode,
		StartTime:      *ctx.qsoStart,
		EndTime:        end,
		ReportSent:     ctx.ReportSent,
		ReportReceived: ctx.ReportReceived,
		MyCallsign:     a.cfg.MyCallsign,
		MyGrid:         a.cfg.MyGrid,
	}
	if IsValidMaidenheadLocator(a.cfg.MyGrid) && IsValidMaidenheadLocator(ctx.TargetGrid) {
		if dist, _, err := DistanceAndBearingFromLocators(a.cfg.MyGrid, ctx.TargetGrid); err == nil {
			rec.DistanceKm = &dist
		}
	}
	ctx.qsoStart = nil
	log.Printf("QSOAutomaton[%s]: QSO complete with %s (%s)", a.cfg.MyCallsign, rec.Callsign, rec.Mode)
	if a.onRecord != nil {
		a.onRecord(rec)
	}
}

// --- state handlers ---

// candidate is the outcome of arbitration: the chosen message and the
// state to enter when taking it.
type candidate struct {
	msg   DecodedMessage
	state TXState
}

// handleListening is TX6: arbitrate among direct calls and CQs and pick
// the next contact, if any.
func handleListening(a *QSOAutomaton, msgs []DecodedMessage) handleResult {
	c := selectNextTarget(a.cfg, msgs, a.worked, a.band())
	if c == nil {
		return handleResult{}
	}
	a.acquireTarget(&c.msg)
	return handleResult{NextState: c.state}
}

// handleAwaitReport is TX1: only a signal report from the current target,
// addressed to me, advances the contact.
func handleAwaitReport(a *QSOAutomaton, msgs []DecodedMessage) handleResult {
	for i := range msgs {
		m := &msgs[i]
		if m.Type != MessageSignalReport || m.Sender != a.ctx.TargetCallsign || m.Target != a.cfg.MyCallsign {
			continue
		}
		received := m.Report
		a.ctx.ReportReceived = &received
		sent := ReportFromSNR(float64(m.SNR))
		a.ctx.ReportSent = &sent
		a.updateFrequency(m)
		return handleResult{NextState: StateTX3}
	}
	return handleResult{}
}

// handleAwaitRoger is TX2: waiting for the target's roger report.
func handleAwaitRoger(a *QSOAutomaton, msgs []DecodedMessage) handleResult {
	for i := range msgs {
		m := &msgs[i]
		if m.Type != MessageRogerReport || m.Sender != a.ctx.TargetCallsign || m.Target != a.cfg.MyCallsign {
			continue
		}
		received := m.Report
		a.ctx.ReportReceived = &received
		a.updateFrequency(m)
		return handleResult{NextState: StateTX4}
	}
	return handleResult{}
}

// handleAwaitConfirm is TX3: waiting for the target's RRR/RR73 (a plain 73
// also closes the contact).
func handleAwaitConfirm(a *QSOAutomaton, msgs []DecodedMessage) handleResult {
	for i := range msgs {
		m := &msgs[i]
		if m.Sender != a.ctx.TargetCallsign || m.Target != a.cfg.MyCallsign {
			continue
		}
		if m.Type == MessageRRR || m.Type == MessageSeventyThree {
			return handleResult{NextState: StateTX5}
		}
	}
	return handleResult{}
}

func enterSignoff(a *QSOAutomaton) {
	a.emitRecord()
}

// handleSignoff is TX4/TX5: the contact is logged, so reuse the listening
// arbitration and jump straight to the matching state for a new caller. A
// just-finished contact must not block responding in the same cycle.
func handleSignoff(a *QSOAutomaton, msgs []DecodedMessage) handleResult {
	if c := selectNextTarget(a.cfg, msgs, a.worked, a.band()); c != nil {
		a.ctx.clearTarget()
		a.acquireTarget(&c.msg)
		return handleResult{NextState: c.state}
	}
	a.ctx.clearTarget()
	if a.cfg.AutoResumeCQAfterSuccess {
		return handleResult{NextState: StateTX6}
	}
	return handleResult{Stop: true}
}

func timeoutResume(a *QSOAutomaton) handleResult {
	a.ctx.clearTarget()
	if a.cfg.AutoResumeCQAfterFail {
		return handleResult{NextState: StateTX6}
	}
	return handleResult{Stop: true}
}

// selectNextTarget is the shared arbitration applied by TX6 and the
// sign-off states. Direct calls (CALL or SIGNAL_REPORT addressed to me)
// always win over CQs. Within each group candidates are ranked by SNR
// descending, then CALL before SIGNAL_REPORT, then decode order. The
// worked-before check is awaited per candidate in rank order.
func selectNextTarget(cfg *OperatorConfig, msgs []DecodedMessage, worked WorkedChecker, band string) *candidate {
	var direct, cqs []DecodedMessage
	for _, m := range msgs {
		switch m.Type {
		case MessageCall, MessageSignalReport:
			if m.Target == cfg.MyCallsign && m.Sender != "" {
				direct = append(direct, m)
			}
		case MessageCQ:
			if !cfg.AutoReplyToCQ || m.Sender == "" {
				continue
			}
			// a directed CQ is only for stations matching its flag
			if m.Flag != "" && m.Flag != cfg.CQFlag {
				continue
			}
			cqs = append(cqs, m)
		}
	}
	rankCandidates(direct)
	rankCandidates(cqs)

	if c := pickDirect(cfg, direct, worked, band); c != nil {
		return c
	}
	for i := range cqs {
		// CQ replies never repeat a contact, whatever the
		// reply_to_worked_stations setting says
		if worked != nil && worked.HasWorked(cqs[i].Sender, band) {
			continue
		}
		return &candidate{msg: cqs[i], state: StateTX1}
	}
	return nil
}

func rankCandidates(msgs []DecodedMessage) {
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].SNR != msgs[j].SNR {
			return msgs[i].SNR > msgs[j].SNR
		}
		return typeRank(msgs[i].Type) < typeRank(msgs[j].Type)
	})
}

// typeRank breaks SNR ties: CALL before SIGNAL_REPORT.
func typeRank(t MessageType) int {
	switch t {
	case MessageCall:
		return 0
	case MessageSignalReport:
		return 1
	default:
		return 2
	}
}

func pickDirect(cfg *OperatorConfig, direct []DecodedMessage, worked WorkedChecker, band string) *candidate {
	type scored struct {
		msg    DecodedMessage
		worked bool
	}
	var acceptable []scored
	for _, m := range direct {
		w := worked != nil && worked.HasWorked(m.Sender, band)
		if w && !cfg.ReplyToWorkedStations {
			continue
		}
		acceptable = append(acceptable, scored{msg: m, worked: w})
	}
	if len(acceptable) == 0 {
		return nil
	}
	if cfg.PrioritizeNewCalls {
		sort.SliceStable(acceptable, func(i, j int) bool {
			return !acceptable[i].worked && acceptable[j].worked
		})
	}
	m := acceptable[0].msg
	state := StateTX2
	if m.Type == MessageSignalReport {
		state = StateTX3
	}
	return &candidate{msg: m, state: state}
}
