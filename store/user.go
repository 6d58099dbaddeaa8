package store

// User is the minimal identity row the engine needs for existence checks.
// Authentication itself happens upstream; the engine only receives an
// already-authenticated user ID.
type User struct {
	ID        int32
	UID       string
	Nickname  string
	CreatedTs int64
}

type FindUser struct {
	ID  *int32
	UID *string
}
