package model

// Snapshot is the full decoded history: closed sessions in chronological
// order plus at most one open session.
type Snapshot struct {
	Sessions []*ExamSession `json:"sessions" yaml:"sessions" validate:"dive,required"`
	Open     *ExamSession   `json:"openSession,omitempty" yaml:"openSession,omitempty"`
}

// Clone returns a deep copy.
func (s Snapshot) Clone() Snapshot {
	var c Snapshot
	if s.Sessions != nil {
		c.Sessions = make([]*ExamSession, len(s.Sessions))
		for i, sess := range s.Sessions {
			c.Sessions[i] = sess.Clone()
		}
	}
	c.Open = s.Open.Clone()
	return c
}

// Empty reports whether the snapshot holds no sessions at all.
func (s Snapshot) Empty() bool {
	return len(s.Sessions) == 0 && s.Open == nil
}
