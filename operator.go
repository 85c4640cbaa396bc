package main

import (
	"fmt"
	"log"
	"sync"
)

// TransmitRequest asks the transmit chain to send one message in the
// current slot.
type TransmitRequest struct {
	OperatorID   string `json:"operator_id"`
	SlotID       string `json:"slot_id"`
	Transmission string `json:"transmission"`
	State        string `json:"state"`
	Frequency    uint64 `json:"frequency"`
}

// OperatorStatus reports an operator's transmit/stop state.
type OperatorStatus struct {
	OperatorID     string `json:"operator_id"`
	IsTransmitting bool   `json:"is_transmitting"`
	IsStopped      bool   `json:"is_stopped"`
}

// OperatorSlots carries the text prepared for each TX label.
type OperatorSlots struct {
	OperatorID string            `json:"operator_id"`
	Slots      map[string]string `json:"slots"`
}

// OperatorState reports the automaton state and working context.
type OperatorState struct {
	OperatorID string      `json:"operator_id"`
	State      string      `json:"state"`
	Context    *QSOContext `json:"context,omitempty"`
}

// UserCommand is the closed set of commands an operator accepts.
type UserCommand interface{ isUserCommand() }

// UpdateContextCommand patches fields of the working QSO context. Nil
// fields are left untouched.
type UpdateContextCommand struct {
	TargetCallsign *string `json:"target_callsign,omitempty"`
	TargetGrid     *string `json:"target_grid,omitempty"`
}

// SetStateCommand forces the automaton into a TX state.
type SetStateCommand struct {
	State TXState `json:"state"`
}

// SetSlotContentCommand overrides the text for one TX label.
type SetSlotContentCommand struct {
	State TXState `json:"state"`
	Text  string  `json:"text"`
}

// SetTransmitCyclesCommand changes which cycles this station transmits on.
type SetTransmitCyclesCommand struct {
	Cycles []int64 `json:"cycles"`
}

// GetSlotsCommand returns the prepared slot texts.
type GetSlotsCommand struct{}

// GetStateCommand returns the automaton state and context.
type GetStateCommand struct{}

func (UpdateContextCommand) isUserCommand()     {}
func (SetStateCommand) isUserCommand()          {}
func (SetSlotContentCommand) isUserCommand()    {}
func (SetTransmitCyclesCommand) isUserCommand() {}
func (GetSlotsCommand) isUserCommand()          {}
func (GetStateCommand) isUserCommand()          {}

// RadioOperator owns one station: its configuration, its automaton, and
// its lifecycle. It listens for slot and decode events on the shared bus
// and emits transmit requests and status notifications.
//
// Stop only gates transmit requests; received-message processing continues
// while stopped so the automaton state stays current.
type RadioOperator struct {
	bus     *EventBus
	metrics *PrometheusMetrics

	mu           sync.Mutex
	cfg          OperatorConfig
	automaton    *QSOAutomaton
	running      bool
	transmitting bool
}

// NewRadioOperator creates an operator and registers it on the bus. The
// operator starts stopped; call Start to begin transmitting.
func NewRadioOperator(cfg OperatorConfig, bus *EventBus, worked WorkedChecker, metrics *PrometheusMetrics) *RadioOperator {
	o := &RadioOperator{
		bus:     bus,
		metrics: metrics,
		cfg:     cfg,
	}
	o.automaton = NewQSOAutomaton(&o.cfg, worked, func(rec QSORecord) {
		if metrics != nil {
			metrics.RecordQSOCompleted(cfg.ID)
		}
		bus.Publish(Event{Type: EventQSORecordAdded, Record: &rec})
	})
	bus.Subscribe(EventSlotStart, o.onSlotStart)
	bus.Subscribe(EventEncodeStart, o.onEncodeStart)
	bus.Subscribe(EventDecodedBatch, o.onDecodedBatch)
	return o
}

// ID returns the operator id.
func (o *RadioOperator) ID() string { return o.cfg.ID }

// Config returns a copy of the operator configuration.
func (o *RadioOperator) Config() OperatorConfig {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cfg
}

// IsRunning reports whether the operator emits transmit requests.
func (o *RadioOperator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Start enables transmit-request emission. Idempotent.
func (o *RadioOperator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()
	log.Printf("RadioOperator[%s]: started", o.cfg.ID)
	o.publishStatus()
}

// Stop disables transmit-request emission. Idempotent.
func (o *RadioOperator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	o.transmitting = false
	o.mu.Unlock()
	log.Printf("RadioOperator[%s]: stopped", o.cfg.ID)
	o.publishStatus()
}

// RequestCall force-initiates a contact with the given callsign,
// replaying the last heard message when one is supplied.
func (o *RadioOperator) RequestCall(callsign, lastMessage string) error {
	o.mu.Lock()
	err := o.automaton.RequestCall(callsign, lastMessage)
	o.mu.Unlock()
	if err != nil {
		return err
	}
	o.publishState()
	o.publishSlots()
	return nil
}

// UserCommand executes one typed command and returns its result. Commands
// outside the closed set are rejected.
func (o *RadioOperator) UserCommand(cmd UserCommand) (any, error) {
	var (
		result      any
		err         error
		notifySlots bool
		notifyState bool
	)

	o.mu.Lock()
	switch c := cmd.(type) {
	case UpdateContextCommand:
		ctx := o.automaton.Context()
		if c.TargetCallsign != nil {
			ctx.TargetCallsign = *c.TargetCallsign
		}
		if c.TargetGrid != nil {
			ctx.TargetGrid = *c.TargetGrid
		}
		snapshot := *ctx
		result = &snapshot
		notifySlots = true
	case SetStateCommand:
		if c.State < StateTX1 || c.State > StateTX6 {
			err = fmt.Errorf("invalid state %d", int(c.State))
			break
		}
		o.automaton.SetState(c.State)
		result = c.State.String()
		notifyState = true
		notifySlots = true
	case SetSlotContentCommand:
		if c.State < StateTX1 || c.State > StateTX6 {
			err = fmt.Errorf("invalid state %d", int(c.State))
			break
		}
		o.automaton.SetSlotContent(c.State, c.Text)
		result = o.automaton.Slots()
		notifySlots = true
	case SetTransmitCyclesCommand:
		o.cfg.TransmitCycles = append([]int64(nil), c.Cycles...)
		result = o.cfg.TransmitCycles
	case GetSlotsCommand:
		result = o.automaton.Slots()
	case GetStateCommand:
		ctx := *o.automaton.Context()
		result = &OperatorState{OperatorID: o.cfg.ID, State: o.automaton.State().String(), Context: &ctx}
	default:
		err = fmt.Errorf("unrecognized command %T", cmd)
	}
	o.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if notifyState {
		o.publishState()
	}
	if notifySlots {
		o.publishSlots()
	}
	return result, nil
}

// onSlotStart decides whether this slot is ours to transmit in and, if so,
// emits the transmit request for the current state's text.
func (o *RadioOperator) onSlotStart(ev Event) {
	slot := ev.Slot
	if slot == nil || slot.ModeName != o.cfg.Mode {
		return
	}

	o.mu.Lock()
	if !o.running || !o.isTransmitSlot(slot) {
		wasTransmitting := o.transmitting
		o.transmitting = false
		o.mu.Unlock()
		if wasTransmitting {
			o.publishStatus()
		}
		return
	}

	text := o.automaton.CurrentSlotText()
	if text == "" {
		wasTransmitting := o.transmitting
		o.transmitting = false
		o.mu.Unlock()
		if wasTransmitting {
			o.publishStatus()
		}
		return
	}

	req := &TransmitRequest{
		OperatorID:   o.cfg.ID,
		SlotID:       slot.ID,
		Transmission: text,
		State:        o.automaton.State().String(),
		Frequency:    o.cfg.Frequency,
	}
	stop := o.automaton.RecordTransmission(text)
	wasTransmitting := o.transmitting
	o.transmitting = true
	o.mu.Unlock()

	o.bus.Publish(Event{Type: EventRequestTransmit, Transmit: req})
	if o.metrics != nil {
		o.metrics.RecordTransmitRequest(o.cfg.ID)
	}
	if !wasTransmitting {
		o.publishStatus()
	}
	if stop {
		o.publishState()
		o.Stop()
	}
}

// onEncodeStart refreshes the prepared slot texts ahead of the transmit
// instant.
func (o *RadioOperator) onEncodeStart(ev Event) {
	if ev.Slot == nil || ev.Slot.ModeName != o.cfg.Mode {
		return
	}
	o.publishSlots()
}

// onDecodedBatch forwards one slot's messages to the automaton. Timeout
// cycles are only counted on receive slots.
func (o *RadioOperator) onDecodedBatch(ev Event) {
	batch := ev.Batch
	if batch == nil {
		return
	}

	o.mu.Lock()
	countTimeout := true
	if batch.Slot != nil {
		countTimeout = !o.isTransmitSlot(batch.Slot)
	}
	stop, changed := o.automaton.HandleDecoded(batch.Messages, countTimeout)
	o.mu.Unlock()

	if changed {
		o.publishState()
		o.publishSlots()
	}
	if stop {
		o.Stop()
	}
}

// isTransmitSlot applies the cycle rule: the slot's cycle number must be
// in the configured transmit cycles. Caller holds o.mu.
func (o *RadioOperator) isTransmitSlot(slot *SlotInfo) bool {
	for _, c := range o.cfg.TransmitCycles {
		if c == slot.CycleNumber {
			return true
		}
	}
	return false
}

func (o *RadioOperator) publishStatus() {
	o.mu.Lock()
	status := &OperatorStatus{
		OperatorID:     o.cfg.ID,
		IsTransmitting: o.transmitting,
		IsStopped:      !o.running,
	}
	o.mu.Unlock()
	o.bus.Publish(Event{Type: EventOperatorStatusChanged, Status: status})
}

func (o *RadioOperator) publishState() {
	o.mu.Lock()
	ctx := *o.automaton.Context()
	state := &OperatorState{OperatorID: o.cfg.ID, State: o.automaton.State().String(), Context: &ctx}
	o.mu.Unlock()
	o.bus.Publish(Event{Type: EventOperatorStateChanged, State: state})
}

func (o *RadioOperator) publishSlots() {
	o.mu.Lock()
	slots := &OperatorSlots{OperatorID: o.cfg.ID, Slots: o.automaton.Slots()}
	o.mu.Unlock()
	o.bus.Publish(Event{Type: EventOperatorSlotsUpdated, Slots: slots})
}
