//go:build plugin

package main

import (
	"log/slog"

	"gitlab.com/gomidi/midi/v2"
	"pipelined.dev/audio/vst2"

	"github.com/vsariola/tunesync/client"
	"github.com/vsariola/tunesync/synth"
)

const (
	pluginID   = 0x54756E53 // "TunS"
	pluginName = "tunesync"

	defaultSampleRate = 44100
)

type processContext struct {
	events []synth.NoteEvent
}

func (c *processContext) add(ev *vst2.MIDIEvent) {
	msg := midi.Message(ev.Data[:])
	var channel, key, velocity uint8
	switch {
	case msg.GetNoteStart(&channel, &key, &velocity):
		c.events = append(c.events, synth.NoteEvent{Frame: int(ev.DeltaFrames), On: true, Channel: int(channel), Note: int(key), Velocity: int(velocity)})
	case msg.GetNoteEnd(&channel, &key):
		c.events = append(c.events, synth.NoteEvent{Frame: int(ev.DeltaFrames), Channel: int(channel), Note: int(key)})
	default:
		// ignore all other MIDI messages
	}
}

// hostSampleRate asks the host for its sample rate. Hosts that do not know
// it yet get the default.
func hostSampleRate(h vst2.Host) float64 {
	if h.GetSampleRate == nil {
		return defaultSampleRate
	}
	if r := float64(h.GetSampleRate()); r > 0 {
		return r
	}
	return defaultSampleRate
}

func init() {
	var (
		version = int32(100)
	)
	vst2.PluginAllocator = func(h vst2.Host) (vst2.Plugin, vst2.Dispatcher) {
		c := client.Register()
		// SysEx is decoded off the audio thread
		sysexQueue := client.NewMIDIQueue(c.Parser(slog.Default()))
		s := synth.New(hostSampleRate(h))
		var (
			context     = processContext{events: make([]synth.NoteEvent, 0, 256)}
			lastVersion uint64
		)
		return vst2.Plugin{
				UniqueID:       pluginID,
				Version:        version,
				InputChannels:  0,
				OutputChannels: 2,
				Name:           pluginName,
				Vendor:         "vsariola/tunesync",
				Category:       vst2.PluginCategorySynth,
				Flags:          vst2.PluginIsSynth,
				ProcessFloatFunc: func(in, out vst2.FloatBuffer) {
					// one snapshot for the whole block
					snap := c.Snapshot()
					if snap.Version() != lastVersion {
						s.Retune(snap)
						lastVersion = snap.Version()
					}
					left, right := out.Channel(0), out.Channel(1)
					s.Render(snap, left[:out.Frames], right[:out.Frames], context.events)
					context.events = context.events[:0] // reset buffer, but keep the allocated memory
				},
			}, vst2.Dispatcher{
				CanDoFunc: func(pcds vst2.PluginCanDoString) vst2.CanDoResponse {
					switch pcds {
					case vst2.PluginCanReceiveEvents, vst2.PluginCanReceiveMIDIEvent:
						return vst2.YesCanDo
					}
					return vst2.NoCanDo
				},
				ProcessEventsFunc: func(ev *vst2.EventsPtr) {
					for i := 0; i < ev.NumEvents(); i++ {
						switch v := ev.Event(i).(type) {
						case *vst2.MIDIEvent:
							context.add(v)
						case *vst2.SysExMIDIEvent:
							sysexQueue.Push(v.SysExDump.Bytes())
						}
					}
				},
				CloseFunc: func() {
					sysexQueue.Close()
					if n := sysexQueue.Dropped(); n > 0 {
						slog.Warn("SysEx messages dropped", "count", n)
					}
					c.Deregister()
				},
			}
	}
}

func main() {}
