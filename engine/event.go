package engine

type EventKind string

const (
	EventPlaying             EventKind = "playing"
	EventPaused              EventKind = "paused"
	EventStopped             EventKind = "stopped"
	EventLoading             EventKind = "loading"
	EventEndOfTrack          EventKind = "end_of_track"
	EventTrackChanged        EventKind = "track_changed"
	EventSeeked              EventKind = "seeked"
	EventVolumeChanged       EventKind = "volume_changed"
	EventShuffleChanged      EventKind = "shuffle_changed"
	EventRepeatChanged       EventKind = "repeat_changed"
	EventRepeatTrackChanged  EventKind = "repeat_track_changed"
	EventSessionConnected    EventKind = "session_connected"
	EventSessionDisconnected EventKind = "session_disconnected"
	EventUnavailable         EventKind = "unavailable"
)

// Event is a player event. Optional fields are nil (or empty for TrackID)
// when the kind does not carry them.
type Event struct {
	Kind       EventKind
	RequestID  *uint64
	TrackID    string
	PositionMs *uint32
	DurationMs *uint32
	Volume     *uint16
	Value      *bool
}

// HasDetail reports whether any optional field is set.
func (e Event) HasDetail() bool {
	return e.RequestID != nil || e.TrackID != "" || e.PositionMs != nil ||
		e.DurationMs != nil || e.Volume != nil || e.Value != nil
}
