package domain

// EventKind enumerates the closed set of room events. Consumers switch on
// the kind and get compile-time checking instead of matching ad hoc strings.
type EventKind string

const (
	EventPlayerJoined    EventKind = "player_joined"
	EventPlayerLeft      EventKind = "player_left"
	EventReadyChanged    EventKind = "ready_changed"
	EventPresenceChanged EventKind = "presence_changed"
	EventSettingsChanged EventKind = "settings_changed"
	EventGameStarted     EventKind = "game_started"
	EventPhaseChanged    EventKind = "phase_changed"
	EventAnswerRecorded  EventKind = "answer_recorded"
	EventGameFinished    EventKind = "game_finished"
)

// Event describes one observable change between two room snapshots.
type Event struct {
	Kind          EventKind  `json:"kind"`
	RoomID        string     `json:"roomId"`
	PlayerID      string     `json:"playerId,omitempty"`
	Username      string     `json:"username,omitempty"`
	Phase         GamePhase  `json:"phase,omitempty"`
	Status        RoomStatus `json:"status,omitempty"`
	QuestionIndex int        `json:"questionIndex,omitempty"`
}

// DiffRooms derives the events that separate two consecutive snapshots of
// the same room. Every client re-derives its local state this way, so the
// result depends only on the two documents, never on delivery order.
func DiffRooms(prev, next *Room) []Event {
	var events []Event
	if prev == nil || next == nil {
		return events
	}

	prevPlayers := make(map[string]*Player, len(prev.Players))
	for i := range prev.Players {
		prevPlayers[prev.Players[i].ID] = &prev.Players[i]
	}
	for i := range next.Players {
		p := &next.Players[i]
		old, ok := prevPlayers[p.ID]
		if !ok {
			events = append(events, Event{Kind: EventPlayerJoined, RoomID: next.ID, PlayerID: p.ID, Username: p.Username})
			continue
		}
		if old.IsReady != p.IsReady {
			events = append(events, Event{Kind: EventReadyChanged, RoomID: next.ID, PlayerID: p.ID, Username: p.Username})
		}
		if old.IsOnline != p.IsOnline {
			events = append(events, Event{Kind: EventPresenceChanged, RoomID: next.ID, PlayerID: p.ID, Username: p.Username})
		}
		if len(p.Answers) > len(old.Answers) {
			last := p.Answers[len(p.Answers)-1]
			events = append(events, Event{
				Kind:          EventAnswerRecorded,
				RoomID:        next.ID,
				PlayerID:      p.ID,
				Username:      p.Username,
				QuestionIndex: questionIndexOf(next, last.QuestionID),
			})
		}
		delete(prevPlayers, p.ID)
	}
	// Anything left in prevPlayers was removed.
	for i := range prev.Players {
		if _, gone := prevPlayers[prev.Players[i].ID]; gone {
			events = append(events, Event{Kind: EventPlayerLeft, RoomID: next.ID, PlayerID: prev.Players[i].ID, Username: prev.Players[i].Username})
		}
	}

	if prev.Settings != next.Settings {
		events = append(events, Event{Kind: EventSettingsChanged, RoomID: next.ID})
	}
	if prev.Status != next.Status {
		switch next.Status {
		case StatusStarting:
			events = append(events, Event{Kind: EventGameStarted, RoomID: next.ID, Status: next.Status})
		case StatusFinished:
			events = append(events, Event{Kind: EventGameFinished, RoomID: next.ID, Status: next.Status})
		}
	}
	if phaseOf(prev) != phaseOf(next) || indexOf(prev) != indexOf(next) {
		if next.Game != nil {
			events = append(events, Event{
				Kind:          EventPhaseChanged,
				RoomID:        next.ID,
				Phase:         next.Game.Phase,
				Status:        next.Status,
				QuestionIndex: next.Game.CurrentQuestionIndex,
			})
		}
	}
	return events
}

func phaseOf(r *Room) GamePhase {
	if r.Game == nil {
		return ""
	}
	return r.Game.Phase
}

func indexOf(r *Room) int {
	if r.Game == nil {
		return -1
	}
	return r.Game.CurrentQuestionIndex
}

func questionIndexOf(r *Room, questionID string) int {
	if r.Game == nil {
		return -1
	}
	for i := range r.Game.Questions {
		if r.Game.Questions[i].ID == questionID {
			return i
		}
	}
	return -1
}
