package observe

// Position addresses a row in the observed list. Both standing queries are
// single-section, so Section is always 0 today; it is kept in the type so a
// batch fully describes where an op lands.
type Position struct {
	Section int
	Row     int
}

// Kind discriminates the diff operations.
type Kind int

const (
	// Insert adds a row at At.
	Insert Kind = iota
	// Delete removes the row at At (position in the pre-batch list).
	Delete
	// Update redraws the row at At with fresh content.
	Update
	// Move relocates a row from From to To.
	Move
)

// String returns the op label used in logs.
func (k Kind) String() string {
	switch k {
	case Insert:
		return "insert"
	case Delete:
		return "delete"
	case Update:
		return "update"
	case Move:
		return "move"
	default:
		return "unknown"
	}
}

// Op is a single row-level change.
type Op struct {
	Kind Kind

	// At is the target row for Insert and Update, the source row for Delete.
	At Position

	// From and To are set for Move only.
	From Position
	To   Position
}

// Batch is one bracketed transaction of ops: everything between the
// conceptual beginUpdates/endUpdates markers. Coordinates follow batched
// table-update semantics: Delete.At and Move.From address rows in the
// pre-batch list, while Insert.At, Move.To, and Update.At address rows in
// the post-batch list. Consumers must apply the batch as a whole against
// the pre-batch snapshot — remove and relocate by source index, place by
// destination index — not replay ops one at a time, since a delete does
// not shift the source coordinates of a later move in the same batch.
type Batch struct {
	Ops []Op
}

// row is the observer's snapshot unit: a stable identity plus a content hash
// for change detection.
type row struct {
	id   string
	hash string
}

// diff computes the op set transforming old into new: deletes in descending
// old position, inserts in ascending new position, then moves for surviving
// rows displaced relative to each other, then updates for rows whose content
// changed in place. Delete and move sources are positions in old; insert,
// move, and update destinations are positions in new (see [Batch]). A row
// that both moved and changed gets a move followed by an update at its
// destination.
//
// Moves are minimal: survivors forming the longest run already in relative
// order stay put, everything else moves.
func diff(old, new []row) Batch {
	oldIndex := make(map[string]int, len(old))
	for i, r := range old {
		oldIndex[r.id] = i
	}
	newIndex := make(map[string]int, len(new))
	for i, r := range new {
		newIndex[r.id] = i
	}
	oldHash := make(map[string]string, len(old))
	for _, r := range old {
		oldHash[r.id] = r.hash
	}

	var batch Batch

	// Deletes, descending so earlier positions stay valid while applying.
	for i := len(old) - 1; i >= 0; i-- {
		if _, ok := newIndex[old[i].id]; !ok {
			batch.Ops = append(batch.Ops, Op{Kind: Delete, At: Position{Row: i}})
		}
	}

	// Inserts, ascending new position.
	for i, r := range new {
		if _, ok := oldIndex[r.id]; !ok {
			batch.Ops = append(batch.Ops, Op{Kind: Insert, At: Position{Row: i}})
		}
	}

	// Survivors in new order, carrying their old positions.
	var survivors []survivor
	for i, r := range new {
		if oldPos, ok := oldIndex[r.id]; ok {
			survivors = append(survivors, survivor{id: r.id, oldPos: oldPos, newPos: i})
		}
	}

	// Rows outside the longest increasing subsequence of old positions
	// (taken in new order) are the ones that moved.
	stable := lisMembers(survivors)
	for i := range survivors {
		if !stable[i] {
			batch.Ops = append(batch.Ops, Op{
				Kind: Move,
				From: Position{Row: survivors[i].oldPos},
				To:   Position{Row: survivors[i].newPos},
			})
		}
	}

	// Updates: content changed. Unmoved rows update in place; moved rows
	// update at their destination, after the move.
	for _, sv := range survivors {
		if oldHash[sv.id] != new[sv.newPos].hash {
			batch.Ops = append(batch.Ops, Op{Kind: Update, At: Position{Row: sv.newPos}})
		}
	}

	return batch
}

// survivor is a row present in both snapshots, tracked by its position in
// each.
type survivor struct {
	id     string
	oldPos int
	newPos int
}

// lisMembers marks the survivors belonging to a longest strictly increasing
// subsequence of oldPos. O(n log n) patience variant.
func lisMembers(survivors []survivor) []bool {
	n := len(survivors)
	member := make([]bool, n)
	if n == 0 {
		return member
	}

	// tails[k] = index into survivors of the smallest tail of an increasing
	// subsequence of length k+1.
	tails := make([]int, 0, n)
	prev := make([]int, n)
	for i := range prev {
		prev[i] = -1
	}

	for i, sv := range survivors {
		lo, hi := 0, len(tails)
		for lo < hi {
			mid := (lo + hi) / 2
			if survivors[tails[mid]].oldPos < sv.oldPos {
				lo = mid + 1
			} else {
				hi = mid
			}
		}
		if lo > 0 {
			prev[i] = tails[lo-1]
		}
		if lo == len(tails) {
			tails = append(tails, i)
		} else {
			tails[lo] = i
		}
	}

	for i := tails[len(tails)-1]; i >= 0; i = prev[i] {
		member[i] = true
	}
	return member
}
