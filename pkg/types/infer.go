package types

// Candidate is a type/format pair tried during schema inference.
type Candidate struct {
	Type   Type
	Format string
}

// InferenceCandidates lists the candidates from most to least specific. year and duration
// are never guessed: every year is also an integer and durations read as plain strings.
func InferenceCandidates() []Candidate {
	return []Candidate{
		{Integer, DefaultFormat},
		{Number, DefaultFormat},
		{Boolean, DefaultFormat},
		{Date, DefaultFormat},
		{Time, DefaultFormat},
		{DateTime, DefaultFormat},
		{YearMonth, DefaultFormat},
		{Array, DefaultFormat},
		{Object, DefaultFormat},
		{String, DefaultFormat},
	}
}

// Accepts reports whether raw casts under the candidate with default options.
func (c Candidate) Accepts(raw any) bool {
	_, err := Cast(c.Type, c.Format, raw, DefaultOptions())
	return err == nil
}
