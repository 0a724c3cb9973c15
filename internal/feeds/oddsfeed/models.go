package oddsfeed

// bizCodeOK is the upstream's "request succeeded" envelope code.
const bizCodeOK = 10000

// EventsResponse is the odds feed's paginated response envelope.
type EventsResponse struct {
	BizCode int        `json:"bizCode"`
	Message string     `json:"message"`
	Data    EventsData `json:"data"`
}

type EventsData struct {
	TotalNum    int          `json:"totalNum"`
	Tournaments []Tournament `json:"tournaments"`
}

type Tournament struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Events []RawEvent `json:"events"`
}

type RawEvent struct {
	EventID           string      `json:"eventId"`
	EstimateStartTime int64       `json:"estimateStartTime"` // unix milliseconds
	Status            int         `json:"status"`
	HomeTeamName      string      `json:"homeTeamName"`
	AwayTeamName      string      `json:"awayTeamName"`
	HomeTeamID        string      `json:"homeTeamId"`
	AwayTeamID        string      `json:"awayTeamId"`
	SeasonID          string      `json:"seasonId"`
	Markets           []RawMarket `json:"markets"`
}

type RawMarket struct {
	ID        string       `json:"id"`
	Desc      string       `json:"desc"`
	Specifier string       `json:"specifier"`
	Status    int          `json:"status"`
	Outcomes  []RawOutcome `json:"outcomes"`
}

// RawOutcome carries odds as text; validation and parsing happen in the
// normalizer, one record at a time.
type RawOutcome struct {
	ID       string `json:"id"`
	Desc     string `json:"desc"`
	Odds     string `json:"odds"`
	IsActive int    `json:"isActive"`
}
