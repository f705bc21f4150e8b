package record

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the on-disk date format of Person.DateOfBirth.
const DateLayout = "2006-01-02"

const personFields = 4

var ErrMalformedPerson = errors.New("malformed person line")

// Person is the reference record: ID,Name,DateOfBirth,CountryOfBirth.
// Fields are not quoted, so a comma inside Name or CountryOfBirth
// corrupts the line.
type Person struct {
	ID             int64
	Name           string
	DateOfBirth    time.Time
	CountryOfBirth string
}

// PersonID is the sort key of a Person.
func PersonID(p Person) int64 {
	return p.ID
}

// ParsePerson decodes one comma-separated line.
func ParsePerson(line string) (Person, error) {
	parts := strings.Split(line, ",")
	if len(parts) != personFields {
		return Person{}, fmt.Errorf("%w: expected %d fields, got %d", ErrMalformedPerson, personFields, len(parts))
	}

	id, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return Person{}, fmt.Errorf("%w: id: %v", ErrMalformedPerson, err)
	}

	dob, err := time.Parse(DateLayout, strings.TrimSpace(parts[2]))
	if err != nil {
		return Person{}, fmt.Errorf("%w: date of birth: %v", ErrMalformedPerson, err)
	}

	return Person{
		ID:             id,
		Name:           parts[1],
		DateOfBirth:    dob,
		CountryOfBirth: parts[3],
	}, nil
}

// FormatPerson encodes p as one line.
func FormatPerson(p Person) string {
	var b strings.Builder
	b.Grow(64)
	b.WriteString(strconv.FormatInt(p.ID, 10))
	b.WriteByte(',')
	b.WriteString(p.Name)
	b.WriteByte(',')
	b.WriteString(p.DateOfBirth.Format(DateLayout))
	b.WriteByte(',')
	b.WriteString(p.CountryOfBirth)
	return b.String()
}

// People is the Format used for person files, ordered by ID.
func People() Format[Person] {
	return Format[Person]{
		Encode:  FormatPerson,
		Decode:  ParsePerson,
		Compare: ByKey(PersonID),
	}
}
