// Package executor drives the bootloader command protocol against a fleet
// of destinations over a single transport: it fragments a command into a
// datagram, ships it, and reassembles per-destination answers, retrying
// only the destinations that have not yet replied.
package executor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cvra/can-bootloader-go/datagram"
	"github.com/cvra/can-bootloader-go/transport"
)

// DefaultRetryLimit is the number of resend rounds attempted before giving
// up, not counting the first send.
const DefaultRetryLimit = 3

// DefaultSettleDelay is the pause after shipping a command's last frame, to
// let target firmware prepare its reply before the next broadcast. It is a
// compatibility knob, not a protocol requirement.
const DefaultSettleDelay = 100 * time.Millisecond

// Executor ships bootloader commands over a transport and collects
// per-destination answers, retrying only the destinations still missing a
// reply.
type Executor struct {
	t           transport.Transport
	source      uint8
	RetryLimit  int
	SettleDelay time.Duration
	Log         *logrus.Logger
}

// New builds an Executor over t, addressing outgoing datagrams from
// source, with the package defaults for retry limit and settle delay.
func New(t transport.Transport, source uint8) *Executor {
	return &Executor{
		t:           t,
		source:      source,
		RetryLimit:  DefaultRetryLimit,
		SettleDelay: DefaultSettleDelay,
		Log:         logrus.StandardLogger(),
	}
}

// Transport returns the underlying transport, for callers that need to
// drive their own reassembly sequence (e.g. an online check or verify pass
// that isn't a simple WriteRetry round trip).
func (e *Executor) Transport() transport.Transport {
	return e.t
}

// Write encodes commandBytes into a datagram addressed to destinations and
// ships it as CAN frames, then sleeps SettleDelay to let firmware prepare
// its replies.
func (e *Executor) Write(commandBytes []byte, destinations []uint8) error {
	return e.write(commandBytes, destinations)
}

func (e *Executor) write(commandBytes []byte, destinations []uint8) error {
	encoded, err := datagram.Encode(commandBytes, destinations)
	if err != nil {
		return fmt.Errorf("executor: encode datagram: %w", err)
	}
	for _, f := range datagram.FramesFromDatagram(encoded, e.source) {
		if err := e.t.SendFrame(f); err != nil {
			return fmt.Errorf("executor: send frame: %w", err)
		}
	}
	time.Sleep(e.SettleDelay)
	return nil
}

// WriteRetry ships commandBytes to destinations and collects one answer per
// destination, resending the same command to whichever destinations have
// not yet replied whenever a transport timeout tick surfaces. It returns
// ErrIO once the retry budget is exhausted with destinations still
// missing. Late replies from already-answered destinations are tolerated
// but never overwrite a stored answer.
func (e *Executor) WriteRetry(commandBytes []byte, destinations []uint8) (map[uint8][]byte, error) {
	remaining := append([]uint8(nil), destinations...)
	answers := make(map[uint8][]byte)
	stream := datagram.NewStream(e.t, datagram.NewReassembler())

	if err := e.write(commandBytes, remaining); err != nil {
		return nil, err
	}

	retryCount := 0
	for len(answers) < len(destinations) {
		tick, err := stream.Next()
		if err != nil {
			return nil, fmt.Errorf("executor: reassembly: %w", err)
		}
		if !tick.Timeout {
			src := tick.Received.Source
			if _, already := answers[src]; !already {
				answers[src] = tick.Received.Data
			}
			continue
		}

		if retryCount == e.RetryLimit {
			e.Log.Errorf("executor: retry limit (%d) exhausted, missing answers from %v",
				e.RetryLimit, missing(destinations, answers))
			return nil, ErrIO
		}

		missingDests := missing(destinations, answers)
		e.Log.Warnf("executor: timeout, resending to %v (attempt %d/%d)",
			missingDests, retryCount+1, e.RetryLimit)
		if err := e.write(commandBytes, missingDests); err != nil {
			return nil, err
		}
		retryCount++
	}

	return answers, nil
}

func missing(destinations []uint8, answers map[uint8][]byte) []uint8 {
	var out []uint8
	for _, d := range destinations {
		if _, ok := answers[d]; !ok {
			out = append(out, d)
		}
	}
	return out
}
