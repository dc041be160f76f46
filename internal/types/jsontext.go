package types

import (
	"database/sql/driver"
	"fmt"
	"strconv"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONText holds one raw JSON document for the config table. Postgres gets a
// real jsonb column; sqlite stores the serialized text. Scan tolerates the
// scalar types sqlite hands back for bare numbers and booleans, so a value
// like 3600 survives the round trip on both dialects.
type JSONText []byte

func (j JSONText) Value() (driver.Value, error) {
	if len(j) == 0 {
		return nil, nil
	}
	return string(j), nil
}

func (j *JSONText) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*j = nil
	case []byte:
		*j = append((*j)[:0], v...)
	case string:
		*j = append((*j)[:0], v...)
	case int64:
		*j = strconv.AppendInt((*j)[:0], v, 10)
	case float64:
		*j = strconv.AppendFloat((*j)[:0], v, 'g', -1, 64)
	case bool:
		*j = strconv.AppendBool((*j)[:0], v)
	default:
		return fmt.Errorf("cannot scan %T into JSONText", src)
	}
	return nil
}

func (JSONText) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

func (j JSONText) MarshalJSON() ([]byte, error) {
	if len(j) == 0 {
		return []byte("null"), nil
	}
	return j, nil
}

func (j *JSONText) UnmarshalJSON(data []byte) error {
	*j = append((*j)[:0], data...)
	return nil
}
