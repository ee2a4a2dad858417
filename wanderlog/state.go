package wanderlog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// State is the part of the trip plan client state the scraper reads.
type State struct {
	TripPlanStore struct {
		Data struct {
			TripPlan *TripPlan `json:"tripPlan"`
		} `json:"data"`
	} `json:"tripPlanStore"`
}

func (s *State) Plan() *TripPlan {
	if s == nil {
		return nil
	}

	return s.TripPlanStore.Data.TripPlan
}

type TripPlan struct {
	Key       string `json:"key"`
	Title     string `json:"title"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
	User      *struct {
		Username string `json:"username"`
		Name     string `json:"name"`
	} `json:"user"`
	Itinerary Itinerary `json:"itinerary"`
}

type Itinerary struct {
	Sections []StateSection `json:"sections"`
	Budget   *Budget        `json:"budget"`
}

type StateSection struct {
	Heading string     `json:"heading"`
	Type    string     `json:"type"`
	Date    string     `json:"date"`
	Text    *QuillText `json:"text"`
	Blocks  []Block    `json:"blocks"`
}

const (
	BlockPlace = "place"
	BlockNote  = "note"
)

type Block struct {
	Type  string     `json:"type"`
	Place *Place     `json:"place"`
	Text  *QuillText `json:"text"`
}

type Place struct {
	PlaceID                  string          `json:"place_id"`
	Name                     string          `json:"name"`
	Rating                   float64         `json:"rating"`
	FormattedAddress         string          `json:"formatted_address"`
	InternationalPhoneNumber string          `json:"international_phone_number"`
	Website                  string          `json:"website"`
	PhotoURLs                []string        `json:"photo_urls"`
	Types                    []string        `json:"types"`
	Amenities                json.RawMessage `json:"amenities"`
}

// AmenityList returns the amenities a place offers. The state stores them
// either as a flag object or as a plain list.
func (p *Place) AmenityList() []string {
	if len(p.Amenities) == 0 {
		return nil
	}

	var list []string
	if err := json.Unmarshal(p.Amenities, &list); err == nil {
		return list
	}

	var flags map[string]any
	if err := json.Unmarshal(p.Amenities, &flags); err != nil {
		return nil
	}

	ans := make([]string, 0, len(flags))

	for k, v := range flags {
		if truthy(v) {
			ans = append(ans, k)
		}
	}

	sort.Strings(ans)

	return ans
}

func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		return x != ""
	default:
		return true
	}
}

// QuillText is rich text stored as Quill delta operations.
type QuillText struct {
	Ops []QuillOp `json:"ops"`
}

type QuillOp struct {
	Insert json.RawMessage `json:"insert"`
}

// String joins the text inserts; embeds such as images are skipped.
func (q *QuillText) String() string {
	if q == nil {
		return ""
	}

	var sb strings.Builder

	for _, op := range q.Ops {
		var s string
		if err := json.Unmarshal(op.Insert, &s); err == nil {
			sb.WriteString(s)
		}
	}

	return strings.TrimSpace(sb.String())
}

type Budget struct {
	Expenses []Expense `json:"expenses"`
}

type Expense struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Amount      *struct {
		Amount       float64 `json:"amount"`
		CurrencyCode string  `json:"currencyCode"`
	} `json:"amount"`
}

// StateSource yields the client state of a loaded trip page. found is false
// when the page carries no state; that is not an error.
type StateSource interface {
	ExtractStructuredState(ctx context.Context, page Page) (state *State, found bool, err error)
}

// MobxSource reads window.__MOBX_STATE__ from the page.
type MobxSource struct{}

const mobxStateJS = `() => {
	const s = window.__MOBX_STATE__;
	if (!s || !s.tripPlanStore) return null;
	const d = s.tripPlanStore.data;
	return JSON.stringify({tripPlanStore: {data: {tripPlan: d ? d.tripPlan : null}}});
}`

func (MobxSource) ExtractStructuredState(_ context.Context, page Page) (*State, bool, error) {
	raw, err := page.Evaluate(mobxStateJS)
	if err != nil {
		return nil, false, fmt.Errorf("failed to evaluate state: %w", err)
	}

	s, ok := raw.(string)
	if !ok || s == "" {
		return nil, false, nil
	}

	return DecodeState([]byte(s))
}

// FileSource reads state from a JSON file, for fixtures and offline runs.
type FileSource struct {
	Path string
}

func (f FileSource) ExtractStructuredState(context.Context, Page) (*State, bool, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read state file: %w", err)
	}

	return DecodeState(data)
}

// DecodeState parses a serialized state blob.
func DecodeState(data []byte) (*State, bool, error) {
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false, fmt.Errorf("failed to decode state: %w", err)
	}

	if st.Plan() == nil {
		return nil, false, nil
	}

	return &st, true, nil
}
