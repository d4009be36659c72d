package roster

import "sort"

// GrowthRow compares one member's total across two sheets.
type GrowthRow struct {
	Name     string `json:"name" yaml:"name"`
	Current  int64  `json:"current" yaml:"current"`
	Previous int64  `json:"previous" yaml:"previous"`
	Diff     int64  `json:"diff" yaml:"diff"`
}

// Growth lists every member of cur with the change of its total against
// prev, biggest gain first. Members missing from prev count as 0 there.
func Growth(cur, prev *Roster) []GrowthRow {
	before := make(map[string]int64)
	if prev != nil {
		for _, e := range prev.Entities() {
			before[e.Name] = e.Total()
		}
	}
	rows := make([]GrowthRow, 0, cur.Len())
	for _, e := range cur.Entities() {
		t := e.Total()
		rows = append(rows, GrowthRow{
			Name:     e.Name,
			Current:  t,
			Previous: before[e.Name],
			Diff:     t - before[e.Name],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Diff > rows[j].Diff })
	return rows
}
