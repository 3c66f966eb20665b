package midi

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"stagehand/internal/domain"
	"stagehand/internal/notify"
)

// Device is one attached controller as reported by the driver.
type Device struct {
	ID   string
	Name string
}

// RawMessage is one controller message as delivered by the driver. Status
// carries the raw status byte; the router decodes it.
type RawMessage struct {
	Status byte
	Data1  byte
	Data2  byte
}

// Controller is the physical-controller collaborator. The driver stack stays
// behind this interface; Open blocks until the device is listening and
// returns the raw message stream, which closes when the device goes away.
type Controller interface {
	Devices(ctx context.Context) ([]Device, error)
	Open(ctx context.Context, deviceID string) (<-chan RawMessage, error)
	Close() error
}

// Dispatcher pushes a normalized event to the action engine.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev domain.Event)
}

// Decode translates a raw controller message into a MIDI event. The second
// return is false for message families the engine does not match on.
func Decode(raw RawMessage) (domain.MIDIEvent, bool) {
	channel := int(raw.Status & 0x0f)
	switch raw.Status & 0xf0 {
	case 0x90:
		// Note-on with velocity zero is a note-off on most controllers.
		if raw.Data2 == 0 {
			return domain.MIDIEvent{
				MessageType: domain.MIDINoteOff,
				Note:        int(raw.Data1),
				Channel:     channel,
			}, true
		}
		return domain.MIDIEvent{
			MessageType: domain.MIDINoteOn,
			Note:        int(raw.Data1),
			Velocity:    int(raw.Data2),
			Channel:     channel,
		}, true
	case 0x80:
		return domain.MIDIEvent{
			MessageType: domain.MIDINoteOff,
			Note:        int(raw.Data1),
			Velocity:    int(raw.Data2),
			Channel:     channel,
		}, true
	case 0xb0:
		return domain.MIDIEvent{
			MessageType: domain.MIDIControlChange,
			Controller:  int(raw.Data1),
			Value:       int(raw.Data2),
			Channel:     channel,
		}, true
	case 0xe0:
		return domain.MIDIEvent{
			MessageType: domain.MIDIPitchBend,
			Value:       int(raw.Data2)<<7 | int(raw.Data1),
			Channel:     channel,
		}, true
	default:
		return domain.MIDIEvent{}, false
	}
}

// Router owns one open controller and feeds its messages to the engine. In
// detection mode messages are reported to the notifier instead of dispatched,
// so the UI can show which control the user just touched.
type Router struct {
	Controller Controller
	Engine     Dispatcher
	Notifier   notify.Notifier
	Logger     zerolog.Logger

	mu        sync.Mutex
	gen       int
	open      bool
	detecting bool
}

// Open starts listening on the given device.
func (r *Router) Open(ctx context.Context, deviceID string) error {
	msgs, err := r.Controller.Open(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("midi: open %s: %w", deviceID, err)
	}

	r.mu.Lock()
	r.gen++
	gen := r.gen
	r.open = true
	r.mu.Unlock()

	go r.route(ctx, msgs, gen)
	return nil
}

// Close stops listening and releases the device.
func (r *Router) Close() error {
	r.mu.Lock()
	r.gen++
	r.open = false
	r.mu.Unlock()
	return r.Controller.Close()
}

// IsOpen reports whether a device is currently routing.
func (r *Router) IsOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.open
}

// SetDetecting toggles detection mode. While detecting, decoded messages go
// to the notifier only and never reach the engine.
func (r *Router) SetDetecting(on bool) {
	r.mu.Lock()
	r.detecting = on
	r.mu.Unlock()
}

func (r *Router) route(ctx context.Context, msgs <-chan RawMessage, gen int) {
	for raw := range msgs {
		ev, ok := Decode(raw)
		if !ok {
			r.Logger.Debug().Uint8("status", raw.Status).Msg("unhandled midi message")
			continue
		}

		r.mu.Lock()
		detecting := r.detecting
		r.mu.Unlock()

		if detecting {
			notify.Logf(r.Notifier, notify.Info, "midi detected: %s", describe(ev))
			continue
		}
		r.Engine.Dispatch(ctx, domain.Event{Kind: domain.EventMIDI, MIDI: &ev})
	}

	r.mu.Lock()
	if gen == r.gen {
		r.open = false
	}
	r.mu.Unlock()
}

func describe(ev domain.MIDIEvent) string {
	switch ev.MessageType {
	case domain.MIDINoteOn:
		return fmt.Sprintf("note_on note=%d velocity=%d channel=%d", ev.Note, ev.Velocity, ev.Channel)
	case domain.MIDINoteOff:
		return fmt.Sprintf("note_off note=%d channel=%d", ev.Note, ev.Channel)
	case domain.MIDIControlChange:
		return fmt.Sprintf("control_change controller=%d value=%d channel=%d", ev.Controller, ev.Value, ev.Channel)
	case domain.MIDIPitchBend:
		return fmt.Sprintf("pitch_bend value=%d channel=%d", ev.Value, ev.Channel)
	default:
		return string(ev.MessageType)
	}
}
