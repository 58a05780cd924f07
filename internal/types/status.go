package types

// Status is a type for the lifecycle status of a resource row in the database.
// It determines whether the row should be included in queries.
type Status string

const (
	StatusPublished Status = "published"
	StatusDeleted   Status = "deleted"
	StatusArchived  Status = "archived"
)

func (s Status) String() string {
	return string(s)
}
