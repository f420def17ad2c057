package projectstore

import (
	"sort"

	"github.com/snow-wind-001/CodeRecoder/apierr"
	"github.com/snow-wind-001/CodeRecoder/internal/diagnostics"
)

var plannerLog = diagnostics.Module("coderecoder/projectstore/planner")

// NonEmptyChecker reports whether a snapshot's on-disk payload is intact:
// present and matching the sizes recorded when it was written. The planner
// needs this to skip snapshots whose payload is missing or was truncated
// (spec §4.7, §8 scenario 3 "corruption tolerated in listing").
type NonEmptyChecker func(snapshot ProjectSnapshot) bool

// Plan resolves target into the ordered chain of snapshots that, applied in
// sequence, reconstruct its state (spec §4.7). snapshots must be sorted by
// SaveNumber ascending.
func Plan(snapshots []ProjectSnapshot, targetSaveNumber int, nonEmpty NonEmptyChecker) ([]ProjectSnapshot, error) {
	bySaveNumber := indexBySaveNumber(snapshots)

	target, ok := bySaveNumber[targetSaveNumber]
	if !ok {
		return nil, apierr.New(apierr.NotFound, "target snapshot not found")
	}

	// A corrupt DIRECT target always fails outright, whether full or
	// incremental — only intermediate dependencies get silently replanned
	// around (spec §8 scenario 3: restore(5) on a corrupted 5 is Corrupt,
	// restore(6) skips 5 with a warning).
	if !nonEmpty(target) {
		return nil, apierr.New(apierr.Corrupt, "target snapshot payload is corrupt")
	}

	if target.EffectiveKind() == Full {
		return []ProjectSnapshot{target}, nil
	}

	base, ok := findUsableFull(snapshots, targetSaveNumber, nonEmpty)
	if !ok {
		return nil, apierr.New(apierr.NoBaseline, "no usable full snapshot found")
	}

	chain := []ProjectSnapshot{base}

	for sn := base.SaveNumber + 1; sn <= targetSaveNumber; sn++ {
		s, ok := bySaveNumber[sn]
		if !ok {
			continue
		}

		if s.SaveNumber == targetSaveNumber {
			// Already validated intact above; always include it.
			if s.EffectiveKind() == Full {
				chain = []ProjectSnapshot{s}
			} else {
				chain = append(chain, s)
			}

			continue
		}

		if s.EffectiveKind() == Full {
			// A later full supersedes everything before it as a cheaper
			// baseline (spec §4.7's "reset the chain" rule).
			if !nonEmpty(s) {
				continue
			}

			chain = []ProjectSnapshot{s}

			continue
		}

		if !nonEmpty(s) {
			plannerLog.Warnw("skipping corrupt incremental snapshot in chain", "saveNumber", s.SaveNumber)
			continue
		}

		chain = append(chain, s)
	}

	return chain, nil
}

// findUsableFull walks the snapshot list backwards from saveNumber-1 to 1
// looking for the most recent non-empty full. If none exists in that direct
// prefix, it scans ALL full snapshots newest-first and logs a degraded
// recovery (spec §4.7).
func findUsableFull(snapshots []ProjectSnapshot, saveNumber int, nonEmpty NonEmptyChecker) (ProjectSnapshot, bool) {
	bySaveNumber := indexBySaveNumber(snapshots)

	for sn := saveNumber - 1; sn >= 1; sn-- {
		s, ok := bySaveNumber[sn]
		if !ok {
			continue
		}

		if s.EffectiveKind() == Full && nonEmpty(s) {
			return s, true
		}
	}

	fulls := make([]ProjectSnapshot, 0, len(snapshots))

	for _, s := range snapshots {
		if s.EffectiveKind() == Full {
			fulls = append(fulls, s)
		}
	}

	sort.Slice(fulls, func(i, j int) bool { return fulls[i].SaveNumber > fulls[j].SaveNumber })

	for _, s := range fulls {
		if nonEmpty(s) {
			plannerLog.Warnw("degraded recovery: using a full snapshot outside the direct prefix", "saveNumber", s.SaveNumber, "target", saveNumber)
			return s, true
		}
	}

	return ProjectSnapshot{}, false
}

func indexBySaveNumber(snapshots []ProjectSnapshot) map[int]ProjectSnapshot {
	m := make(map[int]ProjectSnapshot, len(snapshots))
	for _, s := range snapshots {
		m[s.SaveNumber] = s
	}

	return m
}
