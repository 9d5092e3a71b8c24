package appointment

const (
	MinScore = 1
	MaxScore = 5
)

// With returns the aggregate after folding in one more score.
func (r RatingAggregate) With(score int) RatingAggregate {
	total := r.Average*float64(r.Count) + float64(score)
	count := r.Count + 1
	return RatingAggregate{
		Average: total / float64(count),
		Count:   count,
	}
}
