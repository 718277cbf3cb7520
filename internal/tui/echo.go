package tui

// echoBuffer is a locally edited text field whose value is also owned by
// the coordinator. Edits apply locally at once; a snapshot overwrites the
// buffer only when it carries text we did not send, such as a chosen
// suggestion or a reset.
type echoBuffer struct {
	text     []rune
	acked    string
	inflight []string
}

func (b *echoBuffer) String() string { return string(b.text) }

func (b *echoBuffer) insert(r []rune) string {
	b.text = append(b.text, r...)
	return b.sent()
}

func (b *echoBuffer) backspace() (string, bool) {
	if len(b.text) == 0 {
		return "", false
	}
	b.text = b.text[:len(b.text)-1]
	return b.sent(), true
}

func (b *echoBuffer) sent() string {
	s := string(b.text)
	b.inflight = append(b.inflight, s)
	return s
}

func (b *echoBuffer) sync(remote string) {
	for i, s := range b.inflight {
		if s == remote {
			b.inflight = b.inflight[i+1:]
			b.acked = remote
			return
		}
	}
	if len(b.inflight) > 0 && remote == b.acked {
		return
	}
	b.inflight = nil
	b.acked = remote
	b.text = []rune(remote)
}
