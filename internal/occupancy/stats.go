package occupancy

// Statistics summarizes a status table.
type Statistics struct {
	Total            int     `json:"total_spots"`
	Available        int     `json:"available_spots"`
	Occupied         int     `json:"occupied_spots"`
	Unknown          int     `json:"unknown_spots"`
	AvailabilityRate float64 `json:"availability_rate"`
}

// Aggregate counts statuses and derives the availability rate
// (available / total, or 0 when there are no spots). It does not retain or
// modify statuses.
func Aggregate(statuses []Status) Statistics {
	st := Statistics{Total: len(statuses)}
	for _, s := range statuses {
		switch s {
		case StatusEmpty:
			st.Available++
		case StatusOccupied:
			st.Occupied++
		default:
			st.Unknown++
		}
	}
	if st.Total > 0 {
		st.AvailabilityRate = float64(st.Available) / float64(st.Total)
	}
	return st
}
