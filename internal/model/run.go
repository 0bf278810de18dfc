package model

import "time"

// Run is one aggregation pass for one ticker.
type Run struct {
	ID        int64
	Key       string
	Ticker    string
	AsOf      time.Time
	Close     float64
	Votes     []Vote
	CreatedAt time.Time
}

// Tally counts votes by signal.
func (r *Run) Tally() (buy, hold, sell int) {
	for _, v := range r.Votes {
		switch v.Signal {
		case SignalBuy:
			buy++
		case SignalSell:
			sell++
		default:
			hold++
		}
	}
	return buy, hold, sell
}

// ByPillar groups votes by pillar, preserving vote order and first-seen pillar order.
func (r *Run) ByPillar() ([]Pillar, map[Pillar][]Vote) {
	var order []Pillar
	groups := make(map[Pillar][]Vote)
	for _, v := range r.Votes {
		if _, ok := groups[v.Pillar]; !ok {
			order = append(order, v.Pillar)
		}
		groups[v.Pillar] = append(groups[v.Pillar], v)
	}
	return order, groups
}
