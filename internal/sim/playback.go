package sim

import (
	"fmt"
	"sync"
)

// Event priority bands. Lower numbers are more important and slow playback
// down so the subscriber actually sees the moment.
const (
	PriorityCritical  = 1
	PriorityImportant = 2
	PriorityStandard  = 3
	PriorityDowntime  = 4
)

// playbackWindow is how many recent events drive the automatic speed choice.
const playbackWindow = 3

// lookaheadTicks is how far ahead a buffered critical event forces an
// immediate ramp to real time.
const lookaheadTicks = 3

// PriorityFor classifies an event type into its priority band.
func PriorityFor(eventType string) int {
	switch eventType {
	case EventScore, EventInjury, EventMajorTackle, EventInterception,
		EventScoreAttempt, EventHalftime, EventFinalWhistle:
		return PriorityCritical
	case EventSuccessfulPassScoring, EventDefensiveStop, EventPassAttempt,
		EventScrum:
		return PriorityImportant
	case EventRoutinePlay, EventRegularPass, EventStandardMovement:
		return PriorityStandard
	default:
		return PriorityDowntime
	}
}

// PlaybackDecision is what the subscriber should render at right now.
type PlaybackDecision struct {
	Speed          int  `json:"speed"`
	VisualsEnabled bool `json:"visualsEnabled"`
	ManualOverride bool `json:"manualOverride,omitempty"`
}

// decisionForPriority maps a priority band to its speed and visuals.
func decisionForPriority(priority int) PlaybackDecision {
	switch priority {
	case PriorityCritical:
		return PlaybackDecision{Speed: 1, VisualsEnabled: true}
	case PriorityImportant:
		return PlaybackDecision{Speed: 2, VisualsEnabled: true}
	default:
		return PlaybackDecision{Speed: 8, VisualsEnabled: false}
	}
}

// PlaybackController picks a per-subscriber playback speed from the last
// three observed events. A manual override suspends the automatic choice
// until cleared. With an empty window it idles at real time with visuals on.
type PlaybackController struct {
	mu       sync.Mutex
	window   []MatchEvent
	override int // 0 = automatic
}

func NewPlaybackController() *PlaybackController {
	return &PlaybackController{}
}

// Observe feeds one event into the rolling window.
func (p *PlaybackController) Observe(ev MatchEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.window = append(p.window, ev)
	if len(p.window) > playbackWindow {
		p.window = p.window[len(p.window)-playbackWindow:]
	}
}

// Decision returns the speed and visuals for the subscriber whose playhead
// sits at the given tick. A critical event buffered within three sim-seconds
// ahead of the playhead ramps to real time before it lands.
func (p *PlaybackController) Decision(playheadTick int) PlaybackDecision {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.override != 0 {
		dec := PlaybackDecision{Speed: p.override, VisualsEnabled: p.override <= 2, ManualOverride: true}
		return dec
	}
	if len(p.window) == 0 {
		return PlaybackDecision{Speed: 1, VisualsEnabled: true}
	}

	best := PriorityDowntime
	for _, ev := range p.window {
		prio := ev.Priority
		if prio == 0 {
			prio = PriorityFor(ev.Type)
		}
		if ev.Tick > playheadTick {
			// Still buffered ahead of the playhead: only an imminent
			// critical moment matters, and it ramps to real time early.
			if prio == PriorityCritical && ev.Tick-playheadTick <= lookaheadTicks {
				return decisionForPriority(PriorityCritical)
			}
			continue
		}
		if prio < best {
			best = prio
		}
	}
	return decisionForPriority(best)
}

// SetOverride pins playback to a manual speed of 1, 2, 4 or 8.
func (p *PlaybackController) SetOverride(speed int) error {
	switch speed {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("playback speed %d not supported (want 1, 2, 4 or 8)", speed)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = speed
	return nil
}

// ClearOverride resumes automatic speed selection.
func (p *PlaybackController) ClearOverride() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = 0
}

// Clear empties the rolling window, e.g. when the subscriber seeks.
func (p *PlaybackController) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.window = nil
}
