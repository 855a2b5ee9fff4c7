package entity

// Credit is one row of the credits table. Timestamps are unix milliseconds.
type Credit struct {
	UserID    string `db:"user_id" json:"user_id"`
	Balance   int64  `db:"balance" json:"balance"`
	UpdatedAt int64  `db:"updated_at" json:"updated_at"`
}

// Transaction is one journal line of credit_transactions.
type Transaction struct {
	ID           string `db:"id" json:"id"`
	UserID       string `db:"user_id" json:"user_id"`
	Delta        int64  `db:"delta" json:"delta"`
	BalanceAfter int64  `db:"balance_after" json:"balance_after"`
	Reason       string `db:"reason" json:"reason"`
	Reference    string `db:"reference" json:"reference"`
	CreatedAt    int64  `db:"created_at" json:"created_at"`
}
