// Package portal holds the domain types shared by the wallet adapter, the
// contract gateway and the terminal view: waves, the user session, the two
// capability interfaces and the sentinel errors.
package portal

import "time"

// Wave is one submitted message as reported by the contract.
type Wave struct {
	Sender    string
	Timestamp time.Time
	Message   string
}

// Session is the in-memory state of one client run.
type Session struct {
	Account   string
	WaveCount uint64
	Draft     string
}

// Connected reports whether a wallet account has been adopted.
func (s Session) Connected() bool {
	return s.Account != ""
}
