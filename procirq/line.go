// Copyright 2024 Harald Albrecht.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not
// use this file except in compliance with the License. You may obtain a copy
// of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS, WITHOUT
// WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the
// License for the specific language governing permissions and limitations
// under the License.

package procirq

// line is a cursor over a single text line from “/proc/interrupts”, parsing
// it in place without converting (parts of) it into strings first.
type line struct {
	b   []byte
	pos int
}

// eol returns true if the cursor has reached the end of the line.
func (l *line) eol() bool { return l.pos >= len(l.b) }

// skipBlanks advances past any spaces, returning true if this reaches the end
// of the line.
func (l *line) skipBlanks() (eol bool) {
	for l.pos < len(l.b) && l.b[l.pos] == ' ' {
		l.pos++
	}
	return l.pos >= len(l.b)
}

// expect consumes s if the line continues with s at the current position,
// otherwise it leaves the cursor where it is and returns false.
func (l *line) expect(s string) bool {
	if len(l.b)-l.pos < len(s) || string(l.b[l.pos:l.pos+len(s)]) != s {
		return false
	}
	l.pos += len(s)
	return true
}

// number consumes a decimal number made of at least one digit.
func (l *line) number() (num uint64, ok bool) {
	start := l.pos
	for l.pos < len(l.b) {
		ch := l.b[l.pos]
		if ch < '0' || ch > '9' {
			break
		}
		num = num*10 + uint64(ch-'0')
		l.pos++
	}
	return num, l.pos > start
}

// fields counts the space-separated fields from the current position onwards,
// without moving the cursor.
func (l *line) fields() (n int) {
	inField := false
	for _, ch := range l.b[l.pos:] {
		switch {
		case ch == ' ':
			inField = false
		case !inField:
			inField = true
			n++
		}
	}
	return
}
