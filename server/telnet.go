package server

import (
	"bufio"
)

const (
	// telnetIAC is Interpret As Command
	telnetIAC = 0xFF
	// telnetWILL negotiation command
	telnetWILL = 0xFB
	// telnetWONT negotiation command
	telnetWONT = 0xFC
	// telnetDO negotiation command
	telnetDO = 0xFD
	// telnetDONT negotiation command
	telnetDONT = 0xFE
)

// telnetState tracks a Telnet command sequence that may span reads.
type telnetState int

const (
	telnetData    telnetState = iota
	telnetCommand             // after IAC
	telnetOption              // after IAC WILL/WONT/DO/DONT
)

// telnetReader assembles command lines from r, dropping Telnet command
// sequences on the way. Clients send "IAC IP IAC DM" in front of ABOR;
// without filtering those bytes the verb prefix would not match.
//
// Both the partial line and a half-read command sequence survive a read
// error, so reading resumes cleanly after a timeout.
type telnetReader struct {
	r     *bufio.Reader
	limit int
	line  []byte
	state telnetState
}

func newTelnetReader(r *bufio.Reader, limit int) *telnetReader {
	return &telnetReader{r: r, limit: limit}
}

// readLine returns the next line without its '\n'.
func (t *telnetReader) readLine() (string, error) {
	for {
		b, err := t.r.ReadByte()
		if err != nil {
			return "", err
		}

		switch t.state {
		case telnetCommand:
			t.state = telnetData
			switch b {
			case telnetIAC:
				// Escaped 0xFF is data.
			case telnetWILL, telnetWONT, telnetDO, telnetDONT:
				t.state = telnetOption
				continue
			default:
				// Two-byte command (IP, DM, AYT...).
				continue
			}
		case telnetOption:
			t.state = telnetData
			continue
		default:
			if b == telnetIAC {
				t.state = telnetCommand
				continue
			}
		}

		if b == '\n' {
			line := string(t.line)
			t.line = t.line[:0]
			return line, nil
		}
		if len(t.line) >= t.limit {
			return "", errCommandTooLong
		}
		t.line = append(t.line, b)
	}
}
