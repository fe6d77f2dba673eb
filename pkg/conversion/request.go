/*
Package conversion is the data model shared by the predictors: the request a
client sends for one keystroke, the segments it has already committed and the
Result candidates the predictors hand back.

A Request carries the composer output rather than raw keystrokes. For
roman input "あk" a composer produces:

	Key:         "あｋ"
	KeyBase:     "あ"
	KeyExpanded: []string{"か", "き", "く", "け", "こ"}

Kana and direct input leave KeyExpanded empty and set KeyBase to Key.
*/
package conversion

// RequestType tells the predictors which surface asked for candidates.
type RequestType int

const (
	Conversion RequestType = iota
	Prediction
	Suggestion
	PartialPrediction
	PartialSuggestion
)

func (t RequestType) String() string {
	switch t {
	case Conversion:
		return "conversion"
	case Prediction:
		return "prediction"
	case Suggestion:
		return "suggestion"
	case PartialPrediction:
		return "partial_prediction"
	case PartialSuggestion:
		return "partial_suggestion"
	}
	return "unknown"
}

// ParseRequestType maps the wire name back to a RequestType. Unknown names
// fall back to Suggestion.
func ParseRequestType(name string) RequestType {
	switch name {
	case "conversion":
		return Conversion
	case "prediction":
		return Prediction
	case "partial_prediction":
		return PartialPrediction
	case "partial_suggestion":
		return PartialSuggestion
	}
	return Suggestion
}

// PreeditMethod is the keyboard input style.
type PreeditMethod int

const (
	Roman PreeditMethod = iota
	Kana
)

// LearningLevel controls whether commits are learned and history is shown.
type LearningLevel int

const (
	DefaultHistory LearningLevel = iota
	ReadOnlyHistory
	NoHistory
)

// Segment is one committed (reading, surface) pair.
type Segment struct {
	Key          string `msgpack:"k"`
	Value        string `msgpack:"v"`
	ContentKey   string `msgpack:"ck,omitempty"`
	ContentValue string `msgpack:"cv,omitempty"`
	Description  string `msgpack:"d,omitempty"`
	// Rid is the right POS id of the segment, 0 when unknown.
	Rid uint16 `msgpack:"rid,omitempty"`
}

// Request is one prediction or learning call.
type Request struct {
	Type          RequestType
	Key           string
	KeyBase       string
	KeyExpanded   []string
	PreeditMethod PreeditMethod

	// History holds segments committed before the current composition, oldest first.
	History []Segment

	// ZeroQuerySuggestion and MixedConversion together describe the mobile layout.
	ZeroQuerySuggestion   bool
	MixedConversion       bool
	AutoPartialSuggestion bool
	Handwriting           bool
	Incognito             bool
	Debug                 bool

	Learning         LearningLevel
	NoHistorySuggest bool
}

// CanLearn reports whether a commit from this request may be learned.
func (r *Request) CanLearn() bool {
	return !r.Incognito && r.Learning == DefaultHistory
}

// CanSuggestHistory reports whether learned history may be shown.
func (r *Request) CanSuggestHistory() bool {
	return !r.Incognito && !r.NoHistorySuggest && r.Learning != NoHistory
}

// IsSuggestion reports request types that fill the suggestion window.
func (r *Request) IsSuggestion() bool {
	return r.Type == Suggestion || r.Type == PartialSuggestion
}

// IsMobile reports the mobile layout where prediction and suggestion share one list.
func (r *Request) IsMobile() bool {
	return r.ZeroQuerySuggestion && r.MixedConversion
}

// LastHistory returns the most recently committed segment.
func (r *Request) LastHistory() (Segment, bool) {
	if len(r.History) == 0 {
		return Segment{}, false
	}
	return r.History[len(r.History)-1], true
}

// Base returns KeyBase, defaulting to Key when the composer supplied no base.
func (r *Request) Base() string {
	if r.KeyBase == "" && len(r.KeyExpanded) == 0 {
		return r.Key
	}
	return r.KeyBase
}
