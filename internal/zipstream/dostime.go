package zipstream

import "time"

// dosDateTime packs t into the MS-DOS date/time pair PKZIP headers use.
// DOS time has two-second resolution and no timezone; t is treated as
// local wall-clock time for the purpose of the encoding, mirroring what
// common zip tools do with file mtimes.
func dosDateTime(t time.Time) (dosTime uint16, dosDate uint16) {
	year := t.Year()
	if year < 1980 {
		year = 1980
	}
	dosDate = uint16((year-1980)<<9 | int(t.Month())<<5 | t.Day())
	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	return dosTime, dosDate
}
