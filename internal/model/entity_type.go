package model

import (
	"fmt"
	"strconv"
	"strings"
)

// EntityType identifies the schema family of a payload. Every other key in
// the store is scoped by it. Codes are persisted and must never be reused.
type EntityType int16

const (
	Player                 EntityType = 1
	Team                   EntityType = 2
	Stream                 EntityType = 3
	Game                   EntityType = 4
	Idols                  EntityType = 5
	Tributes               EntityType = 6
	Temporal               EntityType = 7
	Tiebreakers            EntityType = 8
	Sim                    EntityType = 9
	GlobalEvents           EntityType = 10
	OffseasonSetup         EntityType = 11
	Standings              EntityType = 12
	Season                 EntityType = 13
	League                 EntityType = 14
	Subleague              EntityType = 15
	Division               EntityType = 16
	GameStatsheet          EntityType = 17
	TeamStatsheet          EntityType = 18
	PlayerStatsheet        EntityType = 19
	SeasonStatsheet        EntityType = 20
	Bossfight              EntityType = 21
	OffseasonRecap         EntityType = 22
	BonusResult            EntityType = 23
	DecreeResult           EntityType = 24
	EventResult            EntityType = 25
	Playoffs               EntityType = 26
	PlayoffRound           EntityType = 27
	PlayoffMatchup         EntityType = 28
	Tournament             EntityType = 29
	Stadium                EntityType = 30
	RenovationProgress     EntityType = 31
	TeamElectionStats      EntityType = 32
	Item                   EntityType = 33
	CommunityChestProgress EntityType = 34
	GiftProgress           EntityType = 35
	ShopSetup              EntityType = 36
	SunSun                 EntityType = 37
	LibraryStory           EntityType = 38
	GammaElection          EntityType = 39
	GammaElections         EntityType = 40
	GammaElectionDetails   EntityType = 41
	AvailableChampionBets  EntityType = 42
)

var entityTypeNames = map[EntityType]string{
	Player:                 "player",
	Team:                   "team",
	Stream:                 "stream",
	Game:                   "game",
	Idols:                  "idols",
	Tributes:               "tributes",
	Temporal:               "temporal",
	Tiebreakers:            "tiebreakers",
	Sim:                    "sim",
	GlobalEvents:           "globalevents",
	OffseasonSetup:         "offseasonsetup",
	Standings:              "standings",
	Season:                 "season",
	League:                 "league",
	Subleague:              "subleague",
	Division:               "division",
	GameStatsheet:          "gamestatsheet",
	TeamStatsheet:          "teamstatsheet",
	PlayerStatsheet:        "playerstatsheet",
	SeasonStatsheet:        "seasonstatsheet",
	Bossfight:              "bossfight",
	OffseasonRecap:         "offseasonrecap",
	BonusResult:            "bonusresult",
	DecreeResult:           "decreeresult",
	EventResult:            "eventresult",
	Playoffs:               "playoffs",
	PlayoffRound:           "playoffround",
	PlayoffMatchup:         "playoffmatchup",
	Tournament:             "tournament",
	Stadium:                "stadium",
	RenovationProgress:     "renovationprogress",
	TeamElectionStats:      "teamelectionstats",
	Item:                   "item",
	CommunityChestProgress: "communitychestprogress",
	GiftProgress:           "giftprogress",
	ShopSetup:              "shopsetup",
	SunSun:                 "sunsun",
	LibraryStory:           "librarystory",
	GammaElection:          "gammaelection",
	GammaElections:         "gammaelections",
	GammaElectionDetails:   "gammaelectiondetails",
	AvailableChampionBets:  "availablechampionbets",
}

var entityTypesByName = func() map[string]EntityType {
	m := make(map[string]EntityType, len(entityTypeNames))
	for t, name := range entityTypeNames {
		m[name] = t
	}
	return m
}()

// EntityTypes returns every known type in code order.
func EntityTypes() []EntityType {
	types := make([]EntityType, 0, len(entityTypeNames))
	for t := Player; t <= AvailableChampionBets; t++ {
		types = append(types, t)
	}
	return types
}

// Valid reports whether t is a known type.
func (t EntityType) Valid() bool {
	_, ok := entityTypeNames[t]
	return ok
}

// String returns the lowercase name, or the numeric code for unknown types.
func (t EntityType) String() string {
	if name, ok := entityTypeNames[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// ParseEntityType accepts a name (case-insensitive, '_' and '-' ignored)
// or a numeric code.
func ParseEntityType(s string) (EntityType, error) {
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(strings.TrimSpace(s)))
	if t, ok := entityTypesByName[key]; ok {
		return t, nil
	}
	if n, err := strconv.Atoi(key); err == nil && EntityType(n).Valid() {
		return EntityType(n), nil
	}
	return 0, fmt.Errorf("unknown entity type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t EntityType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown entity type %d", int16(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *EntityType) UnmarshalText(text []byte) error {
	parsed, err := ParseEntityType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
