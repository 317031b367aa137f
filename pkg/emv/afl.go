package emv

import (
	"fmt"

	"github.com/pkg/errors"
)

// AFLEntry is one 4-byte entry of the Application File Locator.
type AFLEntry struct {
	SFI   byte
	First byte
	Last  byte
	// SDACount is the number of records, starting at First, that take part
	// in offline data authentication.
	SDACount byte
}

// Records returns the number of records the entry names.
func (e AFLEntry) Records() int { return int(e.Last) - int(e.First) + 1 }

func (e AFLEntry) String() string {
	return fmt.Sprintf("SFI %d records %d-%d (%d for SDA)", e.SFI, e.First, e.Last, e.SDACount)
}

// ParseAFL decodes the value of tag 94.
func ParseAFL(b []byte) ([]AFLEntry, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, berError(TagAFL, errors.Errorf("AFL length %d is not a multiple of 4", len(b)))
	}
	out := make([]AFLEntry, 0, len(b)/4)
	for i := 0; i < len(b); i += 4 {
		e := AFLEntry{SFI: b[i] >> 3, First: b[i+1], Last: b[i+2], SDACount: b[i+3]}
		switch {
		case e.SFI < 1 || e.SFI > 30:
			return nil, berError(TagAFL, errors.Errorf("entry %d: SFI %d out of range", i/4, e.SFI))
		case e.First < 1:
			return nil, berError(TagAFL, errors.Errorf("entry %d: first record is 0", i/4))
		case e.Last < e.First:
			return nil, berError(TagAFL, errors.Errorf("entry %d: last record %d before first %d", i/4, e.Last, e.First))
		case int(e.SDACount) > e.Records():
			return nil, berError(TagAFL, errors.Errorf("entry %d: %d SDA records out of %d", i/4, e.SDACount, e.Records()))
		}
		out = append(out, e)
	}
	return out, nil
}
