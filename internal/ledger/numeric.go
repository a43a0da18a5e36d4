package ledger

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Numeric maps a uint64 onto a NUMERIC(20,0) column. database/sql rejects
// uint64 arguments above 1<<63, so values travel as decimal text.
type Numeric uint64

// Value implements driver.Valuer.
func (n Numeric) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(n), 10), nil
}

// Scan implements sql.Scanner.
func (n *Numeric) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n = 0
	case int64:
		if v < 0 {
			return fmt.Errorf("numeric: negative value %d", v)
		}
		*n = Numeric(v)
	case string:
		return n.parse(v)
	case []byte:
		return n.parse(string(v))
	default:
		return fmt.Errorf("numeric: unsupported source type %T", src)
	}
	return nil
}

func (n *Numeric) parse(s string) error {
	u, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("numeric: %w", err)
	}
	*n = Numeric(u)
	return nil
}
