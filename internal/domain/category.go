package domain

// CategoryCount is one category label with its document count.
type CategoryCount struct {
	Label string
	Count int
}
