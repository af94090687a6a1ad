package metrics

// RoomCreated increments the room creation counter
func (m *Metrics) RoomCreated() {
	m.safeExecute("RoomCreated", func() {
		m.RoomsCreatedTotal.Inc()
	})
}

// ParticipantJoined increments the join counter
func (m *Metrics) ParticipantJoined() {
	m.safeExecute("ParticipantJoined", func() {
		m.ParticipantsJoinedTotal.Inc()
	})
}

// MatchFinished counts a start-matching call by outcome
func (m *Metrics) MatchFinished(result string) {
	m.safeExecute("MatchFinished", func() {
		m.MatchesTotal.WithLabelValues(result).Inc()
	})
}

// EventPublished counts a delivered room event
func (m *Metrics) EventPublished(eventType string) {
	m.safeExecute("EventPublished", func() {
		m.EventsPublishedTotal.WithLabelValues(eventType).Inc()
	})
}
