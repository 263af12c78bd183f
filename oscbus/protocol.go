// Package oscbus carries master messages over OSC/UDP.
//
// The master listens on a well known port. Subscribers announce the address
// they listen on with /tunesync/subscribe and then receive every tuning,
// heartbeat and goodbye the master broadcasts. A subscribe makes the master
// resend its latest tuning to that subscriber, so subscribers re-subscribe
// whenever they suspect they missed a tuning.
package oscbus

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/scgolang/osc"

	"github.com/vsariola/tunesync"
	"github.com/vsariola/tunesync/link"
)

// OSC addresses.
const (
	AddressSubscribe   = "/tunesync/subscribe"
	AddressUnsubscribe = "/tunesync/unsubscribe"
	AddressTuning      = "/tunesync/tuning"
	AddressHeartbeat   = "/tunesync/heartbeat"
	AddressGoodbye     = "/tunesync/goodbye"
)

// MasterPort is the default listening port of a master.
const MasterPort = 5790

// encode converts a master message into an OSC message.
func encode(m link.Message) (osc.Message, error) {
	switch m.Kind {
	case link.Tuning:
		if m.Snapshot == nil {
			return osc.Message{}, errors.New("tuning message without a snapshot")
		}
		blob, err := m.Snapshot.MarshalBinary()
		if err != nil {
			return osc.Message{}, errors.Wrap(err, "encoding snapshot")
		}
		return osc.Message{
			Address: AddressTuning,
			Arguments: osc.Arguments{
				osc.String(m.Master.String()),
				osc.Int(int32(m.Seq)),
				osc.Blob(blob),
			},
		}, nil
	case link.Heartbeat:
		return osc.Message{
			Address: AddressHeartbeat,
			Arguments: osc.Arguments{
				osc.String(m.Master.String()),
				osc.Int(int32(m.Seq)),
			},
		}, nil
	case link.Goodbye:
		return osc.Message{
			Address:   AddressGoodbye,
			Arguments: osc.Arguments{osc.String(m.Master.String())},
		}, nil
	}
	return osc.Message{}, errors.Errorf("unknown message kind %v", m.Kind)
}

// decode converts an OSC message received from a master.
func decode(kind link.MessageKind, m osc.Message) (link.Message, error) {
	ret := link.Message{Kind: kind}
	expected := 1
	switch kind {
	case link.Tuning:
		expected = 3
	case link.Heartbeat:
		expected = 2
	}
	if got := len(m.Arguments); got != expected {
		return ret, errors.Errorf("%s: expected %d argument(s), got %d", m.Address, expected, got)
	}
	s, err := m.Arguments[0].ReadString()
	if err != nil {
		return ret, errors.Wrap(err, "reading master id")
	}
	if ret.Master, err = uuid.Parse(s); err != nil {
		return ret, errors.Wrapf(err, "parsing master id %q", s)
	}
	if kind == link.Goodbye {
		return ret, nil
	}
	seq, err := m.Arguments[1].ReadInt32()
	if err != nil {
		return ret, errors.Wrap(err, "reading sequence number")
	}
	ret.Seq = uint64(uint32(seq))
	if kind == link.Heartbeat {
		return ret, nil
	}
	blob, err := m.Arguments[2].ReadBlob()
	if err != nil {
		return ret, errors.Wrap(err, "reading snapshot")
	}
	if ret.Snapshot, err = tunesync.DecodeSnapshot(blob); err != nil {
		return ret, errors.Wrap(err, "decoding snapshot")
	}
	return ret, nil
}
