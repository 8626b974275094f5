package fdc

// State is the command in progress.
type State int

const (
	StateNone State = iota
	StateReadSector
	StateWriteSector
	StateReadAddress
	StateReadTrack
	StateWriteTrack
	numStates
)

var stateNames = [numStates]string{
	StateNone:        "NONE",
	StateReadSector:  "READ_SECTOR",
	StateWriteSector: "WRITE_SECTOR",
	StateReadAddress: "READ_ADDRESS",
	StateReadTrack:   "READ_TRACK",
	StateWriteTrack:  "WRITE_TRACK",
}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "?"
	}
	return stateNames[s]
}

// Event drives the state machine: a command class,
// the end of a data transfer, or a full disk revolution.
type Event int

const (
	EventTypeI          Event = iota // restore, seek, step
	EventReadSector                  // Type II
	EventWriteSector                 // Type II
	EventReadAddress                 // Type III
	EventReadTrack                   // Type III
	EventWriteTrack                  // Type III
	EventForceInterrupt              // Type IV
	EventTransferDone                // last byte moved through the data register
	EventRevolution                  // track command ran for a whole revolution
	numEvents
)

// Transition is the outcome of an event in a state.
type Transition struct {
	Next      State // state when the command starts a transfer
	Supersede bool  // an unfinished transfer is abandoned
	Commit    bool  // buffered write data goes to the disk
}

// Transitions is the state table of the controller.
var Transitions = [numStates][numEvents]Transition{
	StateNone:        idleRow,
	StateReadSector:  busyRow(false),
	StateWriteSector: busyRow(true),
	StateReadAddress: busyRow(false),
	StateReadTrack:   trackRow(false),
	StateWriteTrack:  trackRow(true),
}

var idleRow = [numEvents]Transition{
	EventTypeI:          {Next: StateNone},
	EventReadSector:     {Next: StateReadSector},
	EventWriteSector:    {Next: StateWriteSector},
	EventReadAddress:    {Next: StateReadAddress},
	EventReadTrack:      {Next: StateReadTrack},
	EventWriteTrack:     {Next: StateWriteTrack},
	EventForceInterrupt: {Next: StateNone},
	EventTransferDone:   {Next: StateNone},
	EventRevolution:     {Next: StateNone},
}

// busyRow is the row of a state with a transfer under way.
// Any command supersedes it; only completion commits written data.
func busyRow(write bool) [numEvents]Transition {
	row := idleRow
	for e := EventTypeI; e <= EventForceInterrupt; e++ {
		row[e].Supersede = true
	}
	row[EventTransferDone].Commit = write
	return row
}

// trackRow also completes the command after one revolution.
func trackRow(write bool) [numEvents]Transition {
	row := busyRow(write)
	row[EventRevolution].Commit = write
	row[EventRevolution].Supersede = !write
	return row
}

// classify maps a command byte to its event.
func classify(command byte) Event {
	switch command & 0xF0 {
	case 0x80, 0x90:
		return EventReadSector
	case 0xA0, 0xB0:
		return EventWriteSector
	case 0xC0:
		return EventReadAddress
	case 0xD0:
		return EventForceInterrupt
	case 0xE0:
		return EventReadTrack
	case 0xF0:
		return EventWriteTrack
	}
	return EventTypeI
}

// dispatch runs the state machine for a command byte.
func (c *Controller) dispatch(command byte) {
	event := classify(command)
	t := Transitions[c.state][event]
	if t.Supersede {
		entry := c.logger().WithField("state", c.state)
		if event == EventForceInterrupt {
			entry.Debugf("interrupted with %d of %d bytes left", c.bytesLeft, c.bytesExpected)
		} else {
			entry.Warnf("command %02X with %d of %d bytes left", command, c.bytesLeft, c.bytesExpected)
		}
		c.statusRegister &^= StatusDRQ
	}
	c.reset()
	c.command = command

	var started bool
	switch event {
	case EventTypeI:
		c.typeI(command)
	case EventReadSector:
		started = c.readSector(command)
	case EventWriteSector:
		started = c.writeSector(command)
	case EventReadAddress:
		started = c.readAddress(command)
	case EventReadTrack:
		started = c.readTrack(command)
	case EventWriteTrack:
		started = c.writeTrack(command)
	case EventForceInterrupt:
		c.forceInterrupt(command)
	}
	if started {
		c.state = t.Next
		c.statusRegister |= StatusBusy | StatusDRQ
	} else {
		c.statusRegister &^= StatusBusy | StatusDRQ
	}
}

// finish handles the end of a transfer: all bytes moved, or a revolution passed.
func (c *Controller) finish(event Event) {
	t := Transitions[c.state][event]
	if t.Commit {
		c.commit()
	}
	if t.Supersede && c.bytesLeft > 0 {
		c.statusRegister |= StatusLostData
	}
	c.state = t.Next
	c.statusRegister &^= StatusBusy | StatusDRQ
	c.reset()
}

// abort drops the transfer in progress.
func (c *Controller) abort() {
	c.statusRegister &^= StatusBusy | StatusDRQ
	c.reset()
}

// reset clears the transfer state.
func (c *Controller) reset() {
	c.state = StateNone
	c.bytesExpected = 0
	c.bytesLeft = 0
	c.readPtr = 0
	c.buffer = nil
	c.sector = nil
	c.track = nil
}

// checkRevolution completes a track command after a full revolution.
func (c *Controller) checkRevolution() {
	if c.state != StateReadTrack && c.state != StateWriteTrack {
		return
	}
	if c.cpu.Clock()-c.startClock >= c.opts.ClocksPerRev {
		c.finish(EventRevolution)
	}
}
