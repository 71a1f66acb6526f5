package sim

import (
	"math"
)

// Stadium and pricing constants for the attendance-weighted accrual. Lower
// division numbers mean bigger crowds; the cap is the largest stadium.
const (
	stadiumCapacity      = 25000
	attendancePerLevel   = 3000
	ticketPrice          = 25.0
	concessionPerHead    = 8.0
	parkingPerHead       = 5.0
	vipPerHead           = 50.0
	vipShare             = 0.05
	merchandisePerHead   = 3.0
)

// RevenueTotals carries the running per-category accrual in credits.
type RevenueTotals struct {
	Ticket      float64 `json:"ticket"`
	Concession  float64 `json:"concession"`
	Parking     float64 `json:"parking"`
	VIP         float64 `json:"vip"`
	Merchandise float64 `json:"merchandise"`
}

// RevenueSnapshot is the rounded view appended every 60 ticks and attached
// to the tick envelope.
type RevenueSnapshot struct {
	Tick        int   `json:"tick"`
	Ticket      int64 `json:"ticket"`
	Concession  int64 `json:"concession"`
	Parking     int64 `json:"parking"`
	VIP         int64 `json:"vip"`
	Merchandise int64 `json:"merchandise"`
	Total       int64 `json:"total"`
}

// attendanceForDivision sizes the crowd from the home team's division.
func attendanceForDivision(division int) int {
	if division < 1 {
		division = 1
	}
	if division > 8 {
		division = 8
	}
	attendance := attendancePerLevel * (9 - division)
	if attendance > stadiumCapacity {
		attendance = stadiumCapacity
	}
	return attendance
}

// revenueMeter accrues attendance-weighted micro-amounts per tick so the
// full-match total lands on the gate receipts regardless of duration.
type revenueMeter struct {
	perTick RevenueTotals
	totals  RevenueTotals
}

func newRevenueMeter(homeDivision int, durationTicks int) *revenueMeter {
	heads := float64(attendanceForDivision(homeDivision))
	ticks := float64(durationTicks)
	return &revenueMeter{
		perTick: RevenueTotals{
			Ticket:      heads * ticketPrice / ticks,
			Concession:  heads * concessionPerHead / ticks,
			Parking:     heads * parkingPerHead / ticks,
			VIP:         heads * vipShare * vipPerHead / ticks,
			Merchandise: heads * merchandisePerHead / ticks,
		},
	}
}

func (m *revenueMeter) accrue() {
	m.totals.Ticket += m.perTick.Ticket
	m.totals.Concession += m.perTick.Concession
	m.totals.Parking += m.perTick.Parking
	m.totals.VIP += m.perTick.VIP
	m.totals.Merchandise += m.perTick.Merchandise
}

// restore reloads totals from a checkpoint blob.
func (m *revenueMeter) restore(totals RevenueTotals) {
	m.totals = totals
}

func (m *revenueMeter) snapshot(tick int) RevenueSnapshot {
	ticket := int64(math.Round(m.totals.Ticket))
	concession := int64(math.Round(m.totals.Concession))
	parking := int64(math.Round(m.totals.Parking))
	vip := int64(math.Round(m.totals.VIP))
	merch := int64(math.Round(m.totals.Merchandise))
	return RevenueSnapshot{
		Tick:        tick,
		Ticket:      ticket,
		Concession:  concession,
		Parking:     parking,
		VIP:         vip,
		Merchandise: merch,
		Total:       ticket + concession + parking + vip + merch,
	}
}
