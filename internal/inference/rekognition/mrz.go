package rekognition

import (
	"fmt"
	"strings"
	"time"
)

// mrz holds the fields read from a machine readable zone.
type mrz struct {
	Format         string
	DocumentType   string
	DocumentNumber string
	Surname        string
	GivenNames     string
	DateOfBirth    time.Time
	ExpiryDate     time.Time
	ChecksValid    bool
}

// FullName joins given names and surname.
func (m mrz) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(m.GivenNames) + " " + strings.TrimSpace(m.Surname))
}

// documentTypeName maps the MRZ document code to a readable type.
func (m mrz) documentTypeName() string {
	switch {
	case strings.HasPrefix(m.DocumentType, "P"):
		return "passport"
	case strings.HasPrefix(m.DocumentType, "I"), strings.HasPrefix(m.DocumentType, "A"), strings.HasPrefix(m.DocumentType, "C"):
		return "id_card"
	default:
		return "travel_document"
	}
}

// normalizeMRZLine strips OCR noise so the line can be matched by length.
func normalizeMRZLine(s string) string {
	s = strings.ToUpper(strings.ReplaceAll(s, " ", ""))
	s = strings.ReplaceAll(s, "«", "<")
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '<' {
			return ""
		}
	}
	return s
}

// findMRZ scans OCR lines for a TD3 (2x44) or TD1 (3x30) zone.
func findMRZ(lines []string, now time.Time) (*mrz, bool) {
	norm := make([]string, 0, len(lines))
	for _, l := range lines {
		if n := normalizeMRZLine(l); n != "" {
			norm = append(norm, n)
		}
	}

	for i := 0; i+1 < len(norm); i++ {
		if len(norm[i]) == 44 && len(norm[i+1]) == 44 {
			if m, err := parseTD3(norm[i], norm[i+1], now); err == nil {
				return m, true
			}
		}
	}
	for i := 0; i+2 < len(norm); i++ {
		if len(norm[i]) == 30 && len(norm[i+1]) == 30 && len(norm[i+2]) == 30 {
			if m, err := parseTD1(norm[i], norm[i+1], norm[i+2], now); err == nil {
				return m, true
			}
		}
	}
	return nil, false
}

func parseTD3(l1, l2 string, now time.Time) (*mrz, error) {
	surname, given := splitName(l1[5:44])

	dob, err := parseMRZDate(l2[13:19], now, false)
	if err != nil {
		return nil, err
	}
	exp, err := parseMRZDate(l2[21:27], now, true)
	if err != nil {
		return nil, err
	}

	composite := l2[0:10] + l2[13:20] + l2[21:43]
	valid := checkDigit(l2[0:9]) == l2[9] &&
		checkDigit(l2[13:19]) == l2[19] &&
		checkDigit(l2[21:27]) == l2[27] &&
		checkDigit(composite) == l2[43]

	return &mrz{
		Format:         "TD3",
		DocumentType:   strings.TrimRight(l1[0:2], "<"),
		DocumentNumber: strings.TrimRight(l2[0:9], "<"),
		Surname:        surname,
		GivenNames:     given,
		DateOfBirth:    dob,
		ExpiryDate:     exp,
		ChecksValid:    valid,
	}, nil
}

func parseTD1(l1, l2, l3 string, now time.Time) (*mrz, error) {
	surname, given := splitName(l3)

	dob, err := parseMRZDate(l2[0:6], now, false)
	if err != nil {
		return nil, err
	}
	exp, err := parseMRZDate(l2[8:14], now, true)
	if err != nil {
		return nil, err
	}

	composite := l1[5:30] + l2[0:7] + l2[8:15] + l2[18:29]
	valid := checkDigit(l1[5:14]) == l1[14] &&
		checkDigit(l2[0:6]) == l2[6] &&
		checkDigit(l2[8:14]) == l2[14] &&
		checkDigit(composite) == l2[29]

	return &mrz{
		Format:         "TD1",
		DocumentType:   strings.TrimRight(l1[0:2], "<"),
		DocumentNumber: strings.TrimRight(l1[5:14], "<"),
		Surname:        surname,
		GivenNames:     given,
		DateOfBirth:    dob,
		ExpiryDate:     exp,
		ChecksValid:    valid,
	}, nil
}

func splitName(field string) (surname, given string) {
	parts := strings.SplitN(field, "<<", 2)
	surname = strings.ReplaceAll(strings.Trim(parts[0], "<"), "<", " ")
	if len(parts) == 2 {
		given = strings.ReplaceAll(strings.Trim(parts[1], "<"), "<", " ")
	}
	return surname, given
}

// parseMRZDate reads YYMMDD. Birth dates never land in the future; expiry
// dates are assumed to fall within fifty years of now.
func parseMRZDate(s string, now time.Time, expiry bool) (time.Time, error) {
	t, err := time.Parse("060102", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("mrz date %q: %w", s, err)
	}

	year := now.Year()/100*100 + t.Year()%100
	if expiry {
		if year > now.Year()+50 {
			year -= 100
		}
	} else if year > now.Year() {
		year -= 100
	}
	return time.Date(year, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// checkDigit computes the ICAO 9303 check digit (weights 7, 3, 1).
func checkDigit(s string) byte {
	weights := [3]int{7, 3, 1}
	sum := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'A' && c <= 'Z':
			v = int(c-'A') + 10
		default:
			v = 0
		}
		sum += v * weights[i%3]
	}
	return byte('0' + sum%10)
}
