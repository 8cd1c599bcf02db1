package stats

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/journal-alert-service/internal/models"
)

// positionKey groups journal legs that belong to the same position. Premium
// is deliberately excluded: the entry debit and exit credit of one position
// carry different premiums and must still cancel.
type positionKey struct {
	symbol     string
	instrument string
	side       string
	strategy   string
}

func keyOf(symbol, instrument, side, strategy string) positionKey {
	return positionKey{
		symbol:     strings.ToUpper(strings.TrimSpace(symbol)),
		instrument: strings.ToLower(strings.TrimSpace(instrument)),
		side:       strings.ToUpper(strings.TrimSpace(side)),
		strategy:   strings.ToLower(strings.TrimSpace(strategy)),
	}
}

func (k positionKey) id() string {
	return strings.ToLower(fmt.Sprintf("journal-%s-%s-%s-%s", k.symbol, k.instrument, k.side, k.strategy))
}

// ledgerTradeOpen infers whether a ledger row represents a still-open
// position. Heuristics run in fixed order because older importers filled
// different subsets of the columns.
func ledgerTradeOpen(t *models.RawTrade) bool {
	if t.IsOpen != nil {
		return *t.IsOpen
	}
	switch strings.ToLower(t.Status) {
	case models.TradeStatusOpen, "active", "working":
		return true
	case models.TradeStatusClosed, "expired", "assigned", "cancelled":
		return false
	}
	if t.ClosedAt != nil {
		return false
	}
	if t.RemainingQty != nil {
		return t.RemainingQty.IsPositive()
	}
	// Has an entry and nothing says it closed.
	return !t.ExecutedAt.IsZero()
}

// openFromLedger derives open positions from the raw trade ledger.
func openFromLedger(trades []*models.RawTrade) []models.OpenPosition {
	var out []models.OpenPosition
	for _, t := range trades {
		if !ledgerTradeOpen(t) {
			continue
		}
		qty := t.EffectiveQuantity()
		if !qty.IsPositive() {
			continue
		}
		entry := t.ExecutedAt
		pos := models.OpenPosition{
			ID:         fmt.Sprintf("trade-%d", t.ID),
			Symbol:     strings.ToUpper(t.Symbol),
			Instrument: strings.ToLower(t.Instrument),
			Side:       strings.ToUpper(t.Side),
			Strategy:   strings.ToLower(t.Strategy),
			Quantity:   qty,
			EntryDate:  &entry,
			ExpiryDate: t.ExpiresAt,
			Source:     "ledger",
		}
		out = append(out, pos)
	}
	return out
}

type journalNet struct {
	qty          decimal.Decimal
	entryDate    time.Time
	daysToExpiry *int
}

// openFromJournalLegs nets entry and exit legs into open quantity per
// position key.
func openFromJournalLegs(legs []*models.JournalTrade) []models.OpenPosition {
	nets := map[positionKey]*journalNet{}
	var order []positionKey

	for _, leg := range legs {
		k := keyOf(leg.Symbol, leg.Instrument, leg.Side, leg.Strategy)
		n, ok := nets[k]
		if !ok {
			n = &journalNet{}
			nets[k] = n
			order = append(order, k)
		}
		if strings.ToLower(leg.LegType) == models.LegExit {
			n.qty = n.qty.Sub(leg.Quantity)
			continue
		}
		n.qty = n.qty.Add(leg.Quantity)
		if n.entryDate.IsZero() || leg.EntryDate.Before(n.entryDate) {
			n.entryDate = leg.EntryDate
		}
		if n.daysToExpiry == nil && leg.DaysToExpiry != nil {
			n.daysToExpiry = leg.DaysToExpiry
		}
	}

	var out []models.OpenPosition
	for _, k := range order {
		n := nets[k]
		if !n.qty.IsPositive() {
			continue
		}
		pos := models.OpenPosition{
			ID:         k.id(),
			Symbol:     k.symbol,
			Instrument: k.instrument,
			Side:       k.side,
			Strategy:   k.strategy,
			Quantity:   n.qty,
			Source:     "journal",
		}
		if !n.entryDate.IsZero() {
			entry := n.entryDate
			pos.EntryDate = &entry
			if n.daysToExpiry != nil {
				expiry := entry.AddDate(0, 0, *n.daysToExpiry)
				pos.ExpiryDate = &expiry
			}
		}
		out = append(out, pos)
	}
	return out
}

// openFromNotes scrapes trade blobs out of unstructured journal notes.
// Last-resort source for data written before structured legs existed.
func openFromNotes(notes []*models.JournalNote) []models.OpenPosition {
	var out []models.OpenPosition
	for _, note := range notes {
		rawTrades, ok := note.Content["trades"].([]interface{})
		if !ok {
			continue
		}
		for i, raw := range rawTrades {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			if noteTradeClosed(entry) {
				continue
			}
			symbol := models.StringOrEmpty(entry["symbol"])
			if symbol == "" {
				continue
			}
			qty := models.DecimalOrZero(firstValue(entry, "quantity", "qty", "contracts"))
			if !qty.IsPositive() {
				qty = decimal.NewFromInt(1)
			}
			instrument := strings.ToLower(models.StringOrEmpty(entry["instrument"]))
			if instrument == "" && entry["contracts"] != nil {
				// A contract count only ever meant options in old notes.
				instrument = models.InstrumentOption
			}
			pos := models.OpenPosition{
				ID:         fmt.Sprintf("note-%d-%d", note.ID, i),
				Symbol:     strings.ToUpper(symbol),
				Instrument: instrument,
				Side:       strings.ToUpper(models.StringOrEmpty(entry["side"])),
				Strategy:   strings.ToLower(models.StringOrEmpty(entry["strategy"])),
				Quantity:   qty,
				Source:     "note",
			}
			noteDate := note.NoteDate
			pos.EntryDate = &noteDate
			if dte := models.IntOrZero(firstValue(entry, "days_to_expiry", "dte")); dte > 0 {
				expiry := noteDate.AddDate(0, 0, dte)
				pos.ExpiryDate = &expiry
			}
			out = append(out, pos)
		}
	}
	return out
}

func noteTradeClosed(entry map[string]interface{}) bool {
	if v, ok := models.BoolValue(entry["closed"]); ok && v {
		return true
	}
	status := strings.ToLower(models.StringOrEmpty(entry["status"]))
	return status == models.TradeStatusClosed || status == "expired"
}

// mergeJournalPositions combines leg-derived and note-derived positions,
// keeping a note position only when no leg position covers the same key.
func mergeJournalPositions(legs, notes []models.OpenPosition) []models.OpenPosition {
	seen := map[positionKey]bool{}
	for _, p := range legs {
		seen[keyOf(p.Symbol, p.Instrument, p.Side, p.Strategy)] = true
	}
	out := legs
	for _, p := range notes {
		if seen[keyOf(p.Symbol, p.Instrument, p.Side, p.Strategy)] {
			continue
		}
		out = append(out, p)
	}
	return out
}

// expiringOn filters positions whose resolved expiry is the given date.
func expiringOn(positions []models.OpenPosition, date time.Time) []models.OpenPosition {
	var out []models.OpenPosition
	for _, p := range positions {
		if p.ExpiresOn(date) {
			out = append(out, p)
		}
	}
	return out
}

func firstValue(m map[string]interface{}, keys ...string) interface{} {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}
