package validate

import "strings"

// Choice is the tri-state result of reading a yes/no answer.
type Choice int

const (
	Unrecognized Choice = iota
	Yes
	No
)

// Button labels shown on yes/no keyboards. They are part of the accepted sets.
const (
	YesLabel = "✅ Да"
	NoLabel  = "❌ Нет"
)

var (
	yesWords = map[string]struct{}{
		"✅ да": {}, "да": {}, "д": {}, "yes": {}, "y": {}, "1": {}, "+": {}, "✅": {},
	}
	noWords = map[string]struct{}{
		"❌ нет": {}, "нет": {}, "н": {}, "no": {}, "n": {}, "0": {}, "-": {}, "❌": {},
	}
)

// ParseYesNo maps text onto Yes, No or Unrecognized. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseYesNo(text string) Choice {
	t := strings.ToLower(strings.TrimSpace(text))
	if _, ok := yesWords[t]; ok {
		return Yes
	}
	if _, ok := noWords[t]; ok {
		return No
	}
	return Unrecognized
}

func (c Choice) String() string {
	switch c {
	case Yes:
		return "yes"
	case No:
		return "no"
	default:
		return "unrecognized"
	}
}
