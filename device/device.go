package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/room4-2/omnistream/functions"
	"github.com/rs/zerolog"
)

// TickInterval is the signal generator period while scanning.
const TickInterval = 80 * time.Millisecond

type EventKind string

const (
	EventState  EventKind = "state"
	EventLog    EventKind = "log"
	EventSignal EventKind = "signal"
)

// Snapshot is the externally visible device state.
type Snapshot struct {
	Module    Module  `json:"module"`
	Scanning  bool    `json:"scanning"`
	GhostMode bool    `json:"ghost_mode"`
	Log       []Entry `json:"log"`
	Signal    []Point `json:"signal"`
}

// Event is delivered to observers after every change.
type Event struct {
	Kind   EventKind
	State  *Snapshot
	Entry  *Entry
	Signal []Point
}

type Observer func(Event)

// Device holds the handset state. Observers run on the caller's goroutine
// after the device lock is released and must not block.
type Device struct {
	log zerolog.Logger

	mu        sync.Mutex
	module    Module
	scanning  bool
	ghost     bool
	actions   *ActionLog
	gen       *Generator
	observers map[int]Observer
	nextObs   int
}

func New(log zerolog.Logger) *Device {
	return &Device{
		log:       log,
		module:    SubGHz,
		actions:   NewActionLog(MaxLogEntries),
		gen:       NewGenerator(),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers fn and returns a function that removes it.
func (d *Device) Subscribe(fn Observer) func() {
	d.mu.Lock()
	id := d.nextObs
	d.nextObs++
	d.observers[id] = fn
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		delete(d.observers, id)
		d.mu.Unlock()
	}
}

func (d *Device) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snapshotLocked()
}

func (d *Device) snapshotLocked() Snapshot {
	return Snapshot{
		Module:    d.module,
		Scanning:  d.scanning,
		GhostMode: d.ghost,
		Log:       d.actions.Entries(),
		Signal:    d.gen.Points(),
	}
}

// unlockAndEmit releases the lock and delivers events in order.
func (d *Device) unlockAndEmit(events ...Event) {
	observers := make([]Observer, 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	d.mu.Unlock()
	for _, ev := range events {
		for _, fn := range observers {
			fn(ev)
		}
	}
}

func (d *Device) stateEventLocked() Event {
	s := d.snapshotLocked()
	return Event{Kind: EventState, State: &s}
}

func (d *Device) addLogLocked(action, data string) Event {
	e := d.actions.Add(d.module, action, data)
	return Event{Kind: EventLog, Entry: &e}
}

// setScanningLocked flips the flag and restarts the waveform on any change.
func (d *Device) setScanningLocked(active bool) {
	if d.scanning != active {
		d.gen.Reset()
	}
	d.scanning = active
}

// SelectModule is the manual module picker.
func (d *Device) SelectModule(name string) error {
	m, ok := ParseModule(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownModule, name)
	}
	d.mu.Lock()
	d.module = m
	d.unlockAndEmit(d.stateEventLocked())
	return nil
}

// ToggleScan is the manual EXEC_SCAN / HALT_CAPTURE button.
func (d *Device) ToggleScan() bool {
	d.mu.Lock()
	action := "START"
	if d.scanning {
		action = "STOP"
	}
	logEv := d.addLogLocked(action, "Scanning range...")
	d.setScanningLocked(!d.scanning)
	active := d.scanning
	d.unlockAndEmit(logEv, d.stateEventLocked())
	return active
}

// ToggleGhost is the manual ghost mode switch.
func (d *Device) ToggleGhost() bool {
	d.mu.Lock()
	d.ghost = !d.ghost
	active := d.ghost
	d.unlockAndEmit(d.stateEventLocked())
	return active
}

// VoiceSwitchModule applies a switch_module call. Names outside the
// catalog leave the device unchanged.
func (d *Device) VoiceSwitchModule(name string) {
	m, ok := ParseModule(name)
	if !ok {
		d.log.Warn().Str("module", name).Msg("⚠️ Voice requested unknown module, ignoring")
		return
	}
	d.mu.Lock()
	logEv := d.addLogLocked("VOICE_CMD", fmt.Sprintf("Switching to %s via Neural Link", m))
	d.module = m
	d.unlockAndEmit(logEv, d.stateEventLocked())
	d.log.Info().Str("module", string(m)).Msg("🎛️ Module switched by voice")
}

// VoiceToggleScan applies a toggle_scan call.
func (d *Device) VoiceToggleScan(active bool) {
	verb := "Stopping"
	if active {
		verb = "Starting"
	}
	d.mu.Lock()
	d.setScanningLocked(active)
	logEv := d.addLogLocked("VOICE_CMD", verb+" capture sequence")
	d.unlockAndEmit(logEv, d.stateEventLocked())
	d.log.Info().Bool("active", active).Msg("📡 Scan toggled by voice")
}

// VoiceToggleGhost applies a toggle_ghost_mode call.
func (d *Device) VoiceToggleGhost(active bool) {
	verb := "Disabling"
	if active {
		verb = "Enabling"
	}
	d.mu.Lock()
	d.ghost = active
	logEv := d.addLogLocked("VOICE_CMD", verb+" Ghost Mode protocol")
	d.unlockAndEmit(logEv, d.stateEventLocked())
	d.log.Info().Bool("active", active).Msg("👻 Ghost mode toggled by voice")
}

// Callbacks wires the voice dispatcher to this device.
func (d *Device) Callbacks() functions.Callbacks {
	return functions.Callbacks{
		OnSwitchModule: d.VoiceSwitchModule,
		OnToggleScan:   d.VoiceToggleScan,
		OnToggleGhost:  d.VoiceToggleGhost,
	}
}

// Run drives the signal generator until ctx is done.
func (d *Device) Run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.tick()
		}
	}
}

func (d *Device) tick() {
	d.mu.Lock()
	if !d.scanning {
		d.mu.Unlock()
		return
	}
	d.gen.Next()
	d.unlockAndEmit(Event{Kind: EventSignal, Signal: d.gen.Points()})
}
