package events

// Placeable is an event that needs a playfield position, with the context
// the position models condition on.
type Placeable struct {
	Index    int // index into Sequence.Events
	Time     float64
	Type     EventType
	NewCombo bool
	// Distance is the pixel distance to the previous placeable announced by a
	// Distance token, or -1 when the sequence carries none.
	Distance int
}

// Placeables lists the events of s that receive positions, in order.
func Placeables(s *Sequence) []Placeable {
	if s == nil {
		return nil
	}
	var out []Placeable
	distance := -1
	newCombo := false
	for i, ev := range s.Events {
		switch {
		case ev.Type == Distance:
			distance = ev.Value
		case ev.Type == NewCombo:
			newCombo = true
		case ev.Type.IsPlaceable():
			out = append(out, Placeable{
				Index:    i,
				Time:     ev.Time,
				Type:     ev.Type,
				NewCombo: newCombo,
				Distance: distance,
			})
			distance = -1
			newCombo = false
		case ev.Type == Spinner:
			newCombo = false
		}
	}
	return out
}
