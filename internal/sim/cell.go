package sim

import (
	"time"

	"trackerd/internal/uplink"
)

// Airtime costs charged to the virtual clock.
const (
	attachTime     = 3 * time.Second
	publishAirtime = 200 * time.Millisecond
)

// Cell models the cellular modem and the network behind it. Coverage
// follows the journey; a connect attempt outside coverage burns its full
// timeout the way a modem searching for a network does. Delivered
// reports are parsed into rows and handed to the sink.
type Cell struct {
	clock   *Clock
	journey *Journey
	sink    uplink.RowWriter

	connected bool

	Connects        int
	ConnectFailures int
	Published       int
	PublishFailures int
}

func NewCell(clock *Clock, journey *Journey, sink uplink.RowWriter) *Cell {
	return &Cell{clock: clock, journey: journey, sink: sink}
}

func (c *Cell) Connect(timeout time.Duration) bool {
	if c.connected && c.covered() {
		return true
	}
	c.Connects++
	if !c.covered() {
		c.clock.Advance(timeout)
		c.ConnectFailures++
		c.connected = false
		return false
	}
	c.clock.Advance(attachTime)
	c.connected = true
	return true
}

// Connected reports a live session: one that was brought up and has not
// since driven out of coverage.
func (c *Cell) Connected() bool {
	return c.connected && c.covered()
}

func (c *Cell) Publish(topic string, payload []byte) bool {
	c.clock.Advance(publishAirtime)
	if !c.Connected() {
		c.connected = false
		c.PublishFailures++
		return false
	}
	if c.sink != nil {
		row := uplink.RowFromReport(topic, payload, c.clock.Truth())
		if err := c.sink.Write(row); err != nil {
			c.PublishFailures++
			return false
		}
	}
	c.Published++
	return true
}

// Drop tears the session down, as the modem powering off for a deep
// sleep does.
func (c *Cell) Drop() {
	c.connected = false
}

func (c *Cell) covered() bool {
	return c.journey.At(c.clock.Truth()).Coverage
}
