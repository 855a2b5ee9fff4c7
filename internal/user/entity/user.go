package entity

// User is an account row in the `users` table. The id is supplied by the
// identity provider; timestamps are unix milliseconds.
type User struct {
	ID        string `db:"id" json:"id"`
	Email     string `db:"email" json:"email,omitempty"`
	CreatedAt int64  `db:"created_at" json:"created_at"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}
