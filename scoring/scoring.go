// Package scoring ranks the players of a Salmon Run shift.
package scoring

import (
	"sort"
	"strconv"
	"strings"

	"github.com/onnwee/grizzpector/splatnetapi"
)

// Weights applied to each counter.
const (
	DeliverWeight       = 1
	GoldenDeliverWeight = 100
	GoldenAssistWeight  = 20
	DefeatEnemyWeight   = 300
	RescueWeight        = 50
	RescuedWeight       = -100
)

// Entry is one ranked player.
type Entry struct {
	Name  string
	Score int
}

// Score computes a player's weighted total.
func Score(r splatnetapi.PlayerResult) int {
	return r.DeliverCount*DeliverWeight +
		r.GoldenDeliverCount*GoldenDeliverWeight +
		r.GoldenAssistCount*GoldenAssistWeight +
		r.DefeatEnemyCount*DefeatEnemyWeight +
		r.RescueCount*RescueWeight +
		r.RescuedCount*RescuedWeight
}

// Rank scores results and orders them by score, highest first. Equal scores keep
// their input order.
func Rank(results []splatnetapi.PlayerResult) []Entry {
	entries := make([]Entry, len(results))
	for i, r := range results {
		entries[i] = Entry{Name: r.Player.Name, Score: Score(r)}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	return entries
}

// Markdown renders entries as a numbered list, one "N. name: score" line each.
func Markdown(entries []Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(e.Name)
		b.WriteString(": ")
		b.WriteString(strconv.Itoa(e.Score))
	}
	return b.String()
}
