package seeder

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

type Event struct {
	EventID    int64
	UserID     string
	SessionID  string
	EventType  string
	Amount     float64
	Currency   string
	Country    string
	Device     string
	OccurredAt time.Time
}

// Generator produces a deterministic event stream for a given seed.
type Generator struct {
	rnd             *rand.Rand
	userCardinality int
	sequence        int64
}

func NewGenerator(seed int64, userCardinality int) *Generator {
	if userCardinality <= 0 {
		userCardinality = 1
	}
	return &Generator{
		rnd:             rand.New(rand.NewSource(seed)),
		userCardinality: userCardinality,
	}
}

// NextEvent returns an event at a random second within the day starting at dayStart.
func (g *Generator) NextEvent(dayStart time.Time) Event {
	g.sequence++
	eventType := g.pickEventType()
	return Event{
		EventID:    g.sequence,
		UserID:     fmt.Sprintf("user-%04d", g.rnd.Intn(g.userCardinality)+1),
		SessionID:  fmt.Sprintf("sess-%08x", g.rnd.Uint32()),
		EventType:  eventType,
		Amount:     g.pickAmount(eventType),
		Currency:   "USD",
		Country:    pickOne(g.rnd, []string{"US", "DE", "GB", "IN", "JP", "BR"}),
		Device:     pickOne(g.rnd, []string{"desktop", "mobile", "tablet"}),
		OccurredAt: dayStart.Add(time.Duration(g.rnd.Intn(86400)) * time.Second),
	}
}

func (g *Generator) pickEventType() string {
	p := g.rnd.Intn(100)
	switch {
	case p < 55:
		return "page_view"
	case p < 75:
		return "search"
	case p < 88:
		return "add_to_cart"
	case p < 97:
		return "checkout"
	default:
		return "purchase"
	}
}

func (g *Generator) pickAmount(eventType string) float64 {
	switch eventType {
	case "purchase":
		return round2(20 + g.rnd.Float64()*280)
	case "checkout":
		return round2(15 + g.rnd.Float64()*240)
	case "add_to_cart":
		return round2(5 + g.rnd.Float64()*120)
	default:
		return 0
	}
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func pickOne(r *rand.Rand, values []string) string {
	return values[r.Intn(len(values))]
}
