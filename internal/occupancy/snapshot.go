package occupancy

import (
	"math"

	"github.com/ironsheep/parkwatch-mcp/internal/detection"
)

// SpotState is one spot's geometry plus its current occupancy.
type SpotState struct {
	detection.Spot
	Status Status `json:"status"`

	// Confidence is the empty-probability of the last prediction, when the
	// classifier reported one.
	Confidence *float64 `json:"confidence,omitempty"`

	// Magnitude is the last change magnitude. Nil until two frames have been
	// sampled, and for crops that could not be compared.
	Magnitude *float64 `json:"magnitude,omitempty"`
}

// Snapshot is a self-contained copy of the engine's observable state.
type Snapshot struct {
	Phase        string      `json:"phase"`
	FrameNumber  uint64      `json:"frame_number"`
	SampledCount uint64      `json:"sampled_count"`
	FrameWidth   int         `json:"frame_width"`
	FrameHeight  int         `json:"frame_height"`
	Statistics   Statistics  `json:"statistics"`
	Spots        []SpotState `json:"spots"`
}

// Snapshot copies the current state. The result shares nothing with the engine.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Phase:        e.Phase().String(),
		FrameNumber:  e.st.frameNumber,
		SampledCount: e.st.sampledCount,
		FrameWidth:   e.st.width,
		FrameHeight:  e.st.height,
		Statistics:   e.Statistics(),
		Spots:        make([]SpotState, len(e.spots)),
	}
	for i, s := range e.spots {
		snap.Spots[i] = SpotState{
			Spot:       s,
			Status:     e.st.statuses[i],
			Confidence: finite(e.st.confidences[i]),
			Magnitude:  finite(e.st.magnitudes[i]),
		}
	}
	return snap
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
