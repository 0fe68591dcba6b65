package domain

import "math/rand"

// codeAlphabet excludes nothing: the web client always displayed codes
// uppercase, so ambiguous glyph pairs were never reported as a problem.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a human-shareable room code.
const CodeLength = 6

// NewRoomCode draws a short random code. Uniqueness is only scoped to
// currently-active rooms; the registry retries on the rare collision and
// codes become reusable once a room finishes.
func NewRoomCode(rnd *rand.Rand) string {
	buf := make([]byte, CodeLength)
	for i := range buf {
		buf[i] = codeAlphabet[rnd.Intn(len(codeAlphabet))]
	}
	return string(buf)
}
