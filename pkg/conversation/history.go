package conversation

// History is the ordered message sequence of one thread. The order is the prompt
// context and is never rearranged.
type History []Message

// Append returns a new history with msgs added at the end. The receiver is left
// untouched, even when it has spare capacity.
func (h History) Append(msgs ...Message) History {
	out := make(History, 0, len(h)+len(msgs))
	out = append(out, h...)
	return append(out, msgs...)
}

// Clone returns a copy that shares no backing array with h.
func (h History) Clone() History {
	if h == nil {
		return History{}
	}
	return h.Append()
}

// Last returns the final message, if any.
func (h History) Last() (Message, bool) {
	if len(h) == 0 {
		return Message{}, false
	}
	return h[len(h)-1], true
}

// LastOfRole returns the most recent message with the given role.
func (h History) LastOfRole(role Role) (Message, bool) {
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].Role == role {
			return h[i], true
		}
	}
	return Message{}, false
}

// HasPrefix reports whether prefix is an exact leading subsequence of h.
func (h History) HasPrefix(prefix History) bool {
	if len(prefix) > len(h) {
		return false
	}
	for i := range prefix {
		if h[i] != prefix[i] {
			return false
		}
	}
	return true
}
