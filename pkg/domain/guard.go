package domain

// The scheduling guard is stateless: every check below is a pure function of
// its arguments and is consulted by the store before any mutation or
// availability query.

// ValidateTimeRange fails unless start < end.
func ValidateTimeRange(start, end int64) error {
	if start >= end {
		return ErrInvalidTimeRange
	}
	return nil
}

// ValidateParticipants fails when no participant is supplied.
func ValidateParticipants(participants []Identity) error {
	if len(participants) == 0 {
		return ErrInvalidParticipants
	}
	return nil
}

// ValidateOrganizer fails unless caller organizes the meeting.
func ValidateOrganizer(caller Identity, m Meeting) error {
	if caller != m.Organizer {
		return newError(CodeNotOrganizer, m.ID, caller)
	}
	return nil
}

// ValidateActive fails when the meeting has been cancelled.
func ValidateActive(m Meeting) error {
	if m.IsCancelled {
		return newError(CodeMeetingCancelled, m.ID, "")
	}
	return nil
}

// ValidateDraft applies the creation preconditions in order: participants
// first, then the time range.
func ValidateDraft(d MeetingDraft) error {
	if err := ValidateParticipants(d.Participants); err != nil {
		return err
	}
	return ValidateTimeRange(d.StartTime, d.EndTime)
}

// ValidateMutation runs the shared preconditions of organizer-only updates on
// an existing, active meeting.
func ValidateMutation(caller Identity, m Meeting) error {
	if err := ValidateOrganizer(caller, m); err != nil {
		return err
	}
	return ValidateActive(m)
}

// Overlaps reports whether [s1,e1) and [s2,e2) intersect. Touching endpoints
// do not overlap.
func Overlaps(s1, e1, s2, e2 int64) bool {
	return s1 < e2 && s2 < e1
}

// CheckAvailability reports whether none of the supplied meetings occupies
// [start,end) on date. Cancelled meetings never block. An invalid range is an
// error rather than a false result.
func CheckAvailability(meetings []Meeting, date, start, end int64) (bool, error) {
	if err := ValidateTimeRange(start, end); err != nil {
		return false, err
	}
	for _, m := range meetings {
		if m.IsCancelled || m.Date != date {
			continue
		}
		if Overlaps(start, end, m.StartTime, m.EndTime) {
			return false, nil
		}
	}
	return true, nil
}

// Conflicts returns the active meetings on date whose interval intersects
// [start,end), in input order.
func Conflicts(meetings []Meeting, date, start, end int64) ([]Meeting, error) {
	if err := ValidateTimeRange(start, end); err != nil {
		return nil, err
	}
	var out []Meeting
	for _, m := range meetings {
		if m.IsCancelled || m.Date != date {
			continue
		}
		if Overlaps(start, end, m.StartTime, m.EndTime) {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}
